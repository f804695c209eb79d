package scene

import (
	"fmt"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/signals"
)

// DefaultDetectors returns the scene detectors in evaluation order.
// Earlier detectors win ties.
func DefaultDetectors() []Detector {
	return []Detector{
		NewBattleDetector(),
		NewMenuDetector(),
		NewOverworldDetector(),
		NewIntroDetector(),
		NewNameCreationDetector(),
	}
}

func resolve(s game.Scene, conf, floor float64) game.Scene {
	if conf > floor {
		return s
	}
	return game.SceneUnknown
}

// #region battle
// BattleDetector keys on HP bars and the battle menu.
type BattleDetector struct {
	hp   *signals.HPBarDetector
	menu *signals.MenuDetector
}

func NewBattleDetector() *BattleDetector {
	return &BattleDetector{hp: signals.NewHPBarDetector(), menu: signals.NewMenuDetector()}
}

func (d *BattleDetector) Name() string { return "BattleSceneDetector" }

func (d *BattleDetector) Detect(dc *signals.Context) Result {
	hasHP := len(d.hp.Detect(dc).Signals) > 0
	hasMenu := len(d.menu.Detect(dc).Signals) > 0

	conf := 0.1
	switch {
	case hasHP && hasMenu:
		conf = 0.95
	case hasHP:
		conf = 0.85
	case hasMenu:
		conf = 0.6
	}
	return Result{
		Scene:      resolve(game.SceneBattle, conf, 0.5),
		Confidence: conf,
		Reasoning:  fmt.Sprintf("battle: hp_bars=%t menu=%t", hasHP, hasMenu),
	}
}

// #endregion battle

// #region menu
// MenuDetector looks for text laid out as stacked menu lines.
type MenuDetector struct {
	text *signals.TextDetector
}

func NewMenuDetector() *MenuDetector {
	return &MenuDetector{text: signals.NewTextDetector().WithContrast(90)}
}

func (d *MenuDetector) Name() string { return "MenuSceneDetector" }

func (d *MenuDetector) Detect(dc *signals.Context) Result {
	hasText := len(d.text.Detect(dc).Signals) > 0
	hasLayout := menuLayout(dc)

	conf := 0.2
	switch {
	case hasText && hasLayout:
		conf = 0.8
	case hasLayout:
		conf = 0.6
	}
	return Result{
		Scene:      resolve(game.SceneMainMenu, conf, 0.5),
		Confidence: conf,
		Reasoning:  fmt.Sprintf("menu: text=%t layout=%t", hasText, hasLayout),
	}
}

// menuLayout counts high-contrast rows in the middle third; three or more look like menu options.
func menuLayout(dc *signals.Context) bool {
	lines := 0
	for y := dc.Height / 3; y < dc.Height*2/3; y += 8 {
		hits := 0
		for x := 0; x < dc.Width; x += 8 {
			if neighbourContrast(dc, x, y, 80) {
				hits++
			}
		}
		if hits > dc.Width/32 {
			lines++
		}
	}
	return lines >= 3
}

func neighbourContrast(dc *signals.Context, x, y, threshold int) bool {
	b, ok := dc.Brightness(x, y)
	if !ok {
		return false
	}
	for dy := 0; dy <= 1; dy++ {
		for dx := 0; dx <= 1; dx++ {
			if nb, ok := dc.Brightness(x+dx, y+dy); ok && abs(b-nb) > threshold {
				return true
			}
		}
	}
	return false
}

// #endregion menu

// #region overworld
// OverworldDetector scores the absence of UI plus location or environment cues.
type OverworldDetector struct {
	location    *signals.LocationDetector
	environment *signals.EnvironmentDetector
}

func NewOverworldDetector() *OverworldDetector {
	return &OverworldDetector{
		location:    signals.NewLocationDetector(),
		environment: signals.NewEnvironmentDetector(),
	}
}

func (d *OverworldDetector) Name() string { return "OverworldSceneDetector" }

func (d *OverworldDetector) Detect(dc *signals.Context) Result {
	hasLocation := len(d.location.Detect(dc).Signals) > 0
	hasEnv := len(d.environment.Detect(dc).Signals) > 0
	hasUI := dc.HasSignal(signals.SignalHPBar) ||
		dc.HasSignal(signals.SignalBattleMenu) ||
		dc.HasSignal(signals.SignalMainMenu)

	conf := 0.1
	switch {
	case !hasUI && (hasLocation || hasEnv):
		conf = 0.7
	case !hasUI:
		conf = 0.5
	}
	return Result{
		Scene:      resolve(game.SceneOverworld, conf, 0.4),
		Confidence: conf,
		Reasoning:  fmt.Sprintf("overworld: location=%t env=%t no_ui=%t", hasLocation, hasEnv, !hasUI),
	}
}

// #endregion overworld

// #region intro
// IntroDetector looks for text inside a dark-bordered dialog box.
type IntroDetector struct {
	text *signals.TextDetector
}

func NewIntroDetector() *IntroDetector {
	return &IntroDetector{text: signals.NewTextDetector().WithContrast(80)}
}

func (d *IntroDetector) Name() string { return "IntroSceneDetector" }

func (d *IntroDetector) Detect(dc *signals.Context) Result {
	hasText := len(d.text.Detect(dc).Signals) > 0
	hasDialog := DialogBox(dc)

	conf := 0.1
	switch {
	case hasText && hasDialog:
		conf = 0.9
	case hasText || hasDialog:
		conf = 0.6
	}
	return Result{
		Scene:      resolve(game.SceneIntro, conf, 0.5),
		Confidence: conf,
		Reasoning:  fmt.Sprintf("intro: text=%t dialog=%t", hasText, hasDialog),
	}
}

// DialogBox reports whether more than 10% of the bottom quarter is dark border.
func DialogBox(dc *signals.Context) bool {
	dark, total := 0, 0
	for y := dc.Height * 3 / 4; y < dc.Height; y++ {
		for x := 0; x < dc.Width; x++ {
			b, ok := dc.Brightness(x, y)
			if !ok {
				continue
			}
			total++
			if b < 50 {
				dark++
			}
		}
	}
	return total > 0 && float64(dark)/float64(total) > 0.1
}

// #endregion intro

// #region name-creation
// NameCreationDetector recognises the character-grid naming screen.
type NameCreationDetector struct {
	text *signals.TextDetector
	menu *signals.MenuDetector
}

func NewNameCreationDetector() *NameCreationDetector {
	return &NameCreationDetector{
		text: signals.NewTextDetector().WithContrast(70),
		menu: signals.NewMenuDetector(),
	}
}

func (d *NameCreationDetector) Name() string { return "NameCreationSceneDetector" }

func (d *NameCreationDetector) Detect(dc *signals.Context) Result {
	hasText := len(d.text.Detect(dc).Signals) > 0
	hasMenu := len(d.menu.Detect(dc).Signals) > 0
	grid := characterGrid(dc)
	prompt := namePrompt(dc)
	slots := characterSlots(dc)

	conf := 0.1
	switch {
	case grid && prompt:
		conf = 0.95
	case grid && (hasText || hasMenu):
		conf = 0.85
	case prompt && hasMenu:
		conf = 0.75
	case slots && hasText:
		conf = 0.65
	case hasText && hasMenu:
		conf = 0.4
	}
	return Result{
		Scene:      resolve(game.SceneNameCreation, conf, 0.6),
		Confidence: conf,
		Reasoning: fmt.Sprintf("name_creation: grid=%t prompt=%t slots=%t text=%t menu=%t",
			grid, prompt, slots, hasText, hasMenu),
	}
}

// characterGrid measures brightness transitions across the centre on a 12x16 lattice.
func characterGrid(dc *signals.Context) bool {
	transitions, samples := 0, 0
	for y := dc.Height / 4; y < dc.Height*3/4; y += 16 {
		prev, havePrev := 0, false
		for x := dc.Width / 4; x < dc.Width*3/4; x += 12 {
			b, ok := dc.Brightness(x, y)
			if !ok {
				continue
			}
			if havePrev && abs(b-prev) > 40 {
				transitions++
			}
			prev, havePrev = b, true
			samples++
		}
	}
	return samples > 0 && float64(transitions)/float64(samples) > 0.3
}

// namePrompt checks the top third for text-like extremes.
func namePrompt(dc *signals.Context) bool {
	hits, samples := 0, 0
	for y := 0; y < dc.Height/3; y += 4 {
		for x := 0; x < dc.Width; x += 4 {
			b, ok := dc.Brightness(x, y)
			if !ok {
				continue
			}
			samples++
			if b < 60 || b > 220 {
				hits++
			}
		}
	}
	return samples > 0 && float64(hits)/float64(samples) > 0.2
}

// characterSlots looks for rows with three or more dark underscore runs.
func characterSlots(dc *signals.Context) bool {
	for y := dc.Height / 3; y < dc.Height*2/3; y += 8 {
		run, segments := 0, 0
		for x := 0; x < dc.Width; x += 2 {
			b, ok := dc.Brightness(x, y)
			if !ok {
				continue
			}
			if b < 80 {
				run++
				continue
			}
			if run > 8 {
				segments++
			}
			run = 0
		}
		if run > 8 {
			segments++
		}
		if segments >= 3 {
			return true
		}
	}
	return false
}

// #endregion name-creation

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
