package main

import (
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
)

// #region frame-source

// streamFrames replays PNG captures laid out as dir/<client-id>/*.png.
// Each tick emits the next capture of every client, in file name order,
// until all clients are exhausted.
func streamFrames(ctx context.Context, dir string, interval time.Duration, out chan<- *game.Frame) error {
	clients, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read frames dir: %w", err)
	}
	queues := make(map[string][]string)
	var order []string
	for _, c := range clients {
		if !c.IsDir() {
			continue
		}
		files, err := filepath.Glob(filepath.Join(dir, c.Name(), "*.png"))
		if err != nil {
			return err
		}
		sort.Strings(files)
		if len(files) > 0 {
			queues[c.Name()] = files
			order = append(order, c.Name())
		}
	}
	log.Printf("[CTRL] frame source: %d clients", len(order))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for len(queues) > 0 {
		for _, id := range order {
			files, ok := queues[id]
			if !ok {
				continue
			}
			f, err := loadFrame(id, files[0])
			if err != nil {
				log.Printf("[CTRL] client=%s skip %s: %v", id, files[0], err)
			} else {
				select {
				case out <- f:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if len(files) == 1 {
				delete(queues, id)
			} else {
				queues[id] = files[1:]
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func loadFrame(clientID, path string) (*game.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, err := png.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return game.NewFrame(clientID, img), nil
}

// #endregion frame-source
