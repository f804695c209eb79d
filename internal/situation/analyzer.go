package situation

import (
	"image"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
)

// #region scene-table
type sceneTraits struct {
	hasText  bool
	hasMenu  bool
	inDialog bool
	urgency  game.Urgency
	colors   []string
}

var sceneTable = map[game.Scene]sceneTraits{
	game.SceneBattle:       {true, true, false, game.UrgencyHigh, []string{"red", "green", "blue"}},
	game.SceneMainMenu:     {false, true, false, game.UrgencyMedium, []string{"blue", "white"}},
	game.SceneIntro:        {true, false, true, game.UrgencyLow, []string{"black", "white"}},
	game.SceneOverworld:    {false, false, false, game.UrgencyLow, []string{"green", "brown"}},
	game.SceneNameCreation: {true, true, false, game.UrgencyMedium, []string{"blue", "white", "black"}},
	game.SceneUnknown:      {false, false, false, game.UrgencyLow, []string{"gray"}},
}

func traitsFor(s game.Scene) sceneTraits {
	if t, ok := sceneTable[s]; ok {
		return t
	}
	return sceneTable[game.SceneUnknown]
}

// FromScene derives a situation purely from a known scene.
func FromScene(s game.Scene) game.Situation {
	t := traitsFor(s)
	return game.Situation{
		Scene:          s,
		HasText:        t.hasText,
		HasMenu:        t.hasMenu,
		HasButtons:     t.hasMenu,
		InDialog:       t.inDialog,
		DominantColors: append([]string(nil), t.colors...),
		Urgency:        t.urgency,
	}
}

// #endregion scene-table

// #region analyzer
// Analyzer derives a Situation from a frame. A known scene is looked up in the
// scene table; otherwise the image is sampled every SampleStep pixels.
type Analyzer struct {
	SampleStep  int
	SampleImage bool

	cacheID  string
	cacheSit game.Situation
	cached   bool
}

// NewAnalyzer returns an analyzer sampling every 8th pixel.
func NewAnalyzer() *Analyzer {
	return &Analyzer{SampleStep: 8, SampleImage: true}
}

// Analyze returns the situation for f given the analysed state st (may be nil).
// Repeated calls for the same frame id reuse the last sampled result.
func (a *Analyzer) Analyze(f *game.Frame, st *game.State) game.Situation {
	if st != nil && st.Scene != game.SceneUnknown {
		return FromScene(st.Scene)
	}
	if !a.SampleImage || f == nil || f.Image == nil {
		s := game.SceneOverworld
		if st != nil {
			s = st.Scene
		}
		sit := FromScene(s)
		sit.HasText, sit.HasMenu, sit.HasButtons, sit.InDialog = false, false, false, false
		return sit
	}
	if a.cached && f.ID != "" && a.cacheID == f.ID {
		return a.cacheSit
	}
	sit := a.sample(f.Image)
	a.cacheID, a.cacheSit, a.cached = f.ID, sit, true
	return sit
}

// ClearCache drops the last sampled result.
func (a *Analyzer) ClearCache() {
	a.cacheID, a.cacheSit, a.cached = "", game.Situation{}, false
}

// Ratios returns the text-like and menu-like pixel fractions of img.
func (a *Analyzer) Ratios(img image.Image) (text, menu float64) {
	step := max(a.SampleStep, 1)
	b := img.Bounds()
	textPx, menuPx, total := 0, 0, 0
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r32, g32, b32, _ := img.At(x, y).RGBA()
			r, g, bl := int(r32>>8), int(g32>>8), int(b32>>8)
			brightness := (r + g + bl) / 3
			if brightness < 50 || brightness > 200 {
				textPx++
			}
			if brightness > 150 && r > 100 && g > 100 && bl > 100 {
				menuPx++
			}
			total++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(textPx) / float64(total), float64(menuPx) / float64(total)
}

func (a *Analyzer) sample(img image.Image) game.Situation {
	text, menu := a.Ratios(img)
	var s game.Scene
	switch {
	case text > 0.3 && menu > 0.1:
		s = game.SceneBattle
	case menu > 0.2:
		s = game.SceneMainMenu
	case text > 0.25 && menu > 0.05:
		s = game.SceneNameCreation
	case text > 0.2:
		s = game.SceneIntro
	default:
		s = game.SceneOverworld
	}
	t := traitsFor(s)
	return game.Situation{
		Scene:          s,
		HasText:        text > 0.15,
		HasMenu:        menu > 0.1,
		HasButtons:     menu > 0.1,
		InDialog:       text > 0.25,
		DominantColors: append([]string(nil), t.colors...),
		Urgency:        t.urgency,
	}
}

// #endregion analyzer

// Progressed reports whether moving from prev to next looks like the
// previous action had an effect.
func Progressed(prev, next game.Situation) bool {
	switch {
	case prev.InDialog != next.InDialog:
		return true
	case prev.CursorRow != nil && next.CursorRow != nil && *prev.CursorRow != *next.CursorRow:
		return true
	case prev.Scene != next.Scene:
		return true
	case prev.HasText != next.HasText, prev.HasMenu != next.HasMenu:
		return true
	}
	return false
}
