package game

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// #region scene
// Scene is the closed classification of what the game screen is showing.
type Scene string

const (
	SceneUnknown      Scene = "unknown"
	SceneIntro        Scene = "intro"
	SceneMainMenu     Scene = "main_menu"
	SceneBattle       Scene = "battle"
	SceneOverworld    Scene = "overworld"
	SceneNameCreation Scene = "name_creation"
)

// AllScenes lists every Scene value.
var AllScenes = []Scene{SceneUnknown, SceneIntro, SceneMainMenu, SceneBattle, SceneOverworld, SceneNameCreation}

// #endregion scene

// #region story-progress
// StoryProgress is the coarse position in the main story line.
type StoryProgress string

const (
	StoryGameStart       StoryProgress = "game_start"
	StoryStarterObtained StoryProgress = "starter_obtained"
	StoryFirstGym        StoryProgress = "first_gym"
	StorySecondGym       StoryProgress = "second_gym"
	StoryThirdGym        StoryProgress = "third_gym"
	StoryFourthGym       StoryProgress = "fourth_gym"
	StoryFifthGym        StoryProgress = "fifth_gym"
	StorySixthGym        StoryProgress = "sixth_gym"
	StorySeventhGym      StoryProgress = "seventh_gym"
	StoryEighthGym       StoryProgress = "eighth_gym"
	StoryEliteFour       StoryProgress = "elite_four"
	StoryChampion        StoryProgress = "champion"
	StoryPostGame        StoryProgress = "post_game"
)

var storyOrder = []StoryProgress{
	StoryGameStart, StoryStarterObtained,
	StoryFirstGym, StorySecondGym, StoryThirdGym, StoryFourthGym,
	StoryFifthGym, StorySixthGym, StorySeventhGym, StoryEighthGym,
	StoryEliteFour, StoryChampion, StoryPostGame,
}

// Rank returns the position of p in the story order, or -1 if p is not a known stage.
func (p StoryProgress) Rank() int {
	for i, s := range storyOrder {
		if s == p {
			return i
		}
	}
	return -1
}

// IsGym reports whether p is one of the eight gym stages.
func (p StoryProgress) IsGym() bool {
	r := p.Rank()
	return r >= StoryFirstGym.Rank() && r <= StoryEighthGym.Rank()
}

// #endregion story-progress

// #region location-type
// LocationType classifies where the player is in the overworld.
type LocationType string

const (
	LocationRoute         LocationType = "route"
	LocationTown          LocationType = "town"
	LocationCity          LocationType = "city"
	LocationBuilding      LocationType = "building"
	LocationPokemonCenter LocationType = "pokemon_center"
	LocationGym           LocationType = "gym"
	LocationCave          LocationType = "cave"
	LocationTallGrass     LocationType = "tall_grass"
	LocationWater         LocationType = "water"
	LocationUnknown       LocationType = "unknown"
)

// #endregion location-type

// #region state
// PartyMember is one entry of the player's party.
type PartyMember struct {
	Species string `json:"species"`
	Level   int    `json:"level"`
	HP      int    `json:"hp"`
	MaxHP   int    `json:"max_hp"`
}

// Position is the player's map position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is a structured snapshot of the game.
// StoryProgress, BadgesEarned and the pokedex counters never decrease within a session.
type State struct {
	Scene              Scene         `json:"scene"`
	PlayerPosition     Position      `json:"player_position"`
	PokemonCount       int           `json:"pokemon_count"`
	CurrentLocation    string        `json:"current_location,omitempty"`
	LocationType       LocationType  `json:"location_type"`
	Party              []PartyMember `json:"party,omitempty"`
	PokedexSeen        int           `json:"pokedex_seen"`
	PokedexCaught      int           `json:"pokedex_caught"`
	BadgesEarned       int           `json:"badges_earned"`
	StoryProgress      StoryProgress `json:"story_progress"`
	InTallGrass        bool          `json:"in_tall_grass"`
	MenuCursorPosition *int          `json:"menu_cursor_position,omitempty"`
	BattleTurn         *int          `json:"battle_turn,omitempty"`
	LastEncounterSteps int           `json:"last_encounter_steps"`
	EncounterChain     int           `json:"encounter_chain"`
}

// DefaultState returns a State for scene with every unresolved field defaulted.
func DefaultState(scene Scene) State {
	return State{
		Scene:         scene,
		LocationType:  LocationUnknown,
		StoryProgress: StoryGameStart,
	}
}

// #endregion state

// #region frame
// Frame is one captured screen from a client. It is not mutated once a
// pipeline pass has started; later stages attach data to the frame context instead.
type Frame struct {
	ID         string
	ClientID   string
	Image      image.Image
	CapturedAt time.Time
	State      *State
	Action     *Action
}

// NewFrame builds a frame with a fresh id and the current capture time.
func NewFrame(clientID string, img image.Image) *Frame {
	return &Frame{
		ID:         uuid.New().String(),
		ClientID:   clientID,
		Image:      img,
		CapturedAt: time.Now().UTC(),
	}
}

// #endregion frame

// #region situation
// Urgency ranks how quickly the bot should react to a situation.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	case UrgencyCritical:
		return "critical"
	default:
		return "low"
	}
}

// Situation is the short-lived behavioural summary of one frame.
type Situation struct {
	Scene          Scene
	HasText        bool
	HasMenu        bool
	HasButtons     bool
	InDialog       bool
	CursorRow      *int
	DominantColors []string
	Urgency        Urgency
}

// #endregion situation

// #region prediction
// Prediction is the output of a policy for one frame.
type Prediction struct {
	ActionProbabilities []float64 `json:"action_probabilities"`
	ValueEstimate       float64   `json:"value_estimate"`
	Confidence          float64   `json:"confidence"`
}

// #endregion prediction
