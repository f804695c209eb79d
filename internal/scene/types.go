package scene

import (
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/signals"
)

// #region detector-interface
// Detector scores how likely the context shows one particular scene.
type Detector interface {
	Name() string
	Detect(dc *signals.Context) Result
}

// Result is a scene candidate with its confidence.
type Result struct {
	Scene      game.Scene
	Confidence float64
	Reasoning  string
}

// #endregion detector-interface

// #region detector-type
// DetectorType names a configurable visual detector family.
type DetectorType string

const (
	DetHPBar         DetectorType = "hp_bar"
	DetBattleMenu    DetectorType = "battle_menu"
	DetMainMenu      DetectorType = "main_menu"
	DetDialogBox     DetectorType = "dialog_box"
	DetTextBlock     DetectorType = "text_block"
	DetMenuCursor    DetectorType = "menu_cursor"
	DetTallGrass     DetectorType = "tall_grass"
	DetWater         DetectorType = "water"
	DetIndoor        DetectorType = "indoor"
	DetPokemonCenter DetectorType = "pokemon_center"
	DetGym           DetectorType = "gym"
	DetCave          DetectorType = "cave"
	DetCity          DetectorType = "city"
	DetTown          DetectorType = "town"
	DetRoute         DetectorType = "route"
	DetBuilding      DetectorType = "building"
	DetShiny         DetectorType = "shiny"
	DetPokemon       DetectorType = "pokemon"
	DetBagMenu       DetectorType = "bag_menu"
)

// #endregion detector-type

// #region analysis
// Analysis is the output of one analyzer pass over a frame.
type Analysis struct {
	Scene      game.Scene
	Confidence float64
	State      game.State
	Context    *signals.Context
	Pipeline   signals.Result
	Candidates []Result
	Elapsed    time.Duration
}

// #endregion analysis
