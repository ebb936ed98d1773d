// File: tile/desc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Textual tile payload descriptor: "tile part=P width=W height=H
// tileposx=X tileposy=Y tilewidth=TW tileheight=TH [ver=V] [id=I] ...".
// Coordinates and sizes are document pixels.

package tile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/collabio/api"
)

// Desc is a parsed tile payload.
type Desc struct {
	Part       int
	Width      int
	Height     int
	TilePosX   int
	TilePosY   int
	TileWidth  int
	TileHeight int
	// Ver is -1 when the payload carries no version.
	Ver int
	// ID marks preview tiles; empty otherwise.
	ID string
}

// required fields of a tile payload; ver and id are optional.
var required = [...]string{"part", "width", "height", "tileposx", "tileposy", "tilewidth", "tileheight"}

// Parse parses a tile or tilecombine payload. Unknown keys and trailing
// parameters after "ver" are tolerated and ignored.
func Parse(text string) (*Desc, error) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || (tokens[0] != "tile" && tokens[0] != "tilecombine") {
		return nil, fmt.Errorf("tile parse: not a tile message: %q", text)
	}

	d := &Desc{Ver: -1}
	seen := make(map[string]bool, len(required))
	for _, token := range tokens[1:] {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		if key == "id" {
			d.ID = value
			continue
		}

		n, err := strconv.Atoi(value)
		if err != nil {
			if isRequired(key) {
				return nil, fmt.Errorf("tile parse: bad %s in %q: %w", key, text, err)
			}
			continue
		}
		switch key {
		case "part":
			d.Part = n
		case "width":
			d.Width = n
		case "height":
			d.Height = n
		case "tileposx":
			d.TilePosX = n
		case "tileposy":
			d.TilePosY = n
		case "tilewidth":
			d.TileWidth = n
		case "tileheight":
			d.TileHeight = n
		case "ver":
			d.Ver = n
			continue
		default:
			continue
		}
		seen[key] = true
	}

	for _, key := range required {
		if !seen[key] {
			return nil, fmt.Errorf("tile parse: missing %s in %q", key, text)
		}
	}
	return d, nil
}

func isRequired(key string) bool {
	for _, k := range required {
		if k == key {
			return true
		}
	}
	return false
}

// IntersectsWithRect reports whether the tile rectangle touches the given
// rectangle. Touching edges count as intersection.
func (d *Desc) IntersectsWithRect(x, y, w, h int) bool {
	return x+w >= d.TilePosX &&
		x <= d.TilePosX+d.TileWidth &&
		y+h >= d.TilePosY &&
		y <= d.TilePosY+d.TileHeight
}

// Parser adapts Parse to the api.TileParser capability.
type Parser struct{}

var _ api.TileParser = Parser{}

// Parse implements api.TileParser.
func (Parser) Parse(text string) (api.TileDescriptor, error) {
	d, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return d, nil
}
