package physics

import "fmt"

// Layer is a collision classification bitmask.
type Layer uint8

const (
	LayerPlayer Layer = 1 << iota
	LayerNpc
)

// LayerAll matches every body.
const LayerAll Layer = 0xff

func (l Layer) Has(o Layer) bool { return l&o != 0 }

// ParseLayer maps a data-table layer name to its bit.
func ParseLayer(name string) (Layer, error) {
	switch name {
	case "player":
		return LayerPlayer, nil
	case "npc":
		return LayerNpc, nil
	default:
		return 0, fmt.Errorf("unknown layer %q", name)
	}
}

// ParseMask ORs a list of layer names into one mask.
func ParseMask(names []string) (Layer, error) {
	var m Layer
	for _, n := range names {
		l, err := ParseLayer(n)
		if err != nil {
			return 0, err
		}
		m |= l
	}
	return m, nil
}
