package notation

import (
	"fmt"
	"strings"
)

// position of each natural root on the circle of fifths
var rootFifths = map[byte]int{'F': -1, 'C': 0, 'G': 1, 'D': 2, 'A': 3, 'E': 4, 'B': 5}

// mode shift relative to the major (ionian) scale on the same root
var modeFifths = []struct {
	prefix string
	shift  int
}{
	{"maj", 0}, {"ion", 0}, {"min", -3}, {"aeo", -3}, {"mix", -1},
	{"dor", -2}, {"phr", -4}, {"lyd", 1}, {"loc", -5}, {"m", -3},
}

const (
	sharpOrder = "FCGDAEB"
	flatOrder  = "BEADGCF"
)

// keySignature maps a note letter (upper case) to its semitone offset
type keySignature map[byte]int

func parseKey(value string) (keySignature, string, error) {
	v := strings.TrimSpace(stripComment(value))
	if v == "" || strings.EqualFold(v, "none") || v == "HP" || v == "Hp" {
		return keySignature{}, "C", nil
	}

	root := v[0]
	if root >= 'a' && root <= 'g' {
		root -= 'a' - 'A'
	}
	fifths, ok := rootFifths[root]
	if !ok {
		return nil, "", fmt.Errorf("unknown key %q", value)
	}
	name := string(root)
	rest := v[1:]
	if strings.HasPrefix(rest, "#") {
		fifths += 7
		name += "#"
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "b") {
		fifths -= 7
		name += "b"
		rest = rest[1:]
	}

	mode := strings.ToLower(strings.TrimSpace(rest))
	if i := strings.IndexAny(mode, " \t"); i >= 0 {
		// trailing explicit accidentals and clef settings are ignored
		mode = mode[:i]
	}
	if mode != "" {
		matched := false
		for _, m := range modeFifths {
			if strings.HasPrefix(mode, m.prefix) {
				fifths += m.shift
				name += mode
				matched = true
				break
			}
		}
		if !matched && !strings.HasPrefix(mode, "clef") && !strings.Contains(mode, "=") {
			return nil, "", fmt.Errorf("unknown mode %q in key %q", mode, value)
		}
	}

	if fifths > 7 || fifths < -7 {
		return nil, "", fmt.Errorf("key %q is outside the circle of fifths", value)
	}

	sig := keySignature{}
	for i := 0; i < fifths; i++ {
		sig[sharpOrder[i]] = 1
	}
	for i := 0; i < -fifths; i++ {
		sig[flatOrder[i]] = -1
	}
	return sig, name, nil
}
