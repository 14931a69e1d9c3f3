package levels

import "fmt"

// ID names the levels shipped with the game.
type ID uint8

const (
	MainMenu ID = iota
	Level1
	Level2
	Level3
)

func (id ID) String() string {
	switch id {
	case MainMenu:
		return "MainMenu"
	case Level1:
		return "Level1"
	case Level2:
		return "Level2"
	case Level3:
		return "Level3"
	default:
		return fmt.Sprintf("Level(%d)", uint8(id))
	}
}
