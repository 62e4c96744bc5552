package notation

import (
	"fmt"
	"strconv"
	"strings"
)

var letterSemitones = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// Parse splits ABC text into tunes. Tunes without any notes are dropped, so
// the result may be empty. Malformed header fields are reported as errors.
func Parse(text string) ([]*Tune, error) {
	var tunes []*Tune
	for _, block := range splitTunes(text) {
		t, err := parseTune(block)
		if err != nil {
			return nil, err
		}
		if t != nil && t.NoteCount() > 0 {
			tunes = append(tunes, t)
		}
	}
	return tunes, nil
}

// splitTunes cuts the text at every X: reference line
func splitTunes(text string) [][]string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var blocks [][]string
	var cur []string
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "X:") && len(cur) > 0 {
			blocks = append(blocks, cur)
			cur = nil
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func isFieldLine(line string) bool {
	return len(line) >= 2 && line[1] == ':' &&
		((line[0] >= 'A' && line[0] <= 'Z') || (line[0] >= 'a' && line[0] <= 'z'))
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '%'); i >= 0 {
		return s[:i]
	}
	return s
}

type parser struct {
	tune      *Tune
	key       keySignature
	unitSet   bool
	inBody    bool
	measure   map[string]int
	tuplet    int
	tupletMul float64
	broken    float64
}

func parseTune(lines []string) (*Tune, error) {
	p := &parser{
		tune:    &Tune{Tempo: defaultTempo, meterRatio: 1},
		key:     keySignature{},
		measure: map[string]int{},
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		if isFieldLine(line) {
			if err := p.field(line[0], line[2:]); err != nil {
				return nil, err
			}
			continue
		}
		if !p.inBody {
			p.startBody()
		}
		if err := p.body(line); err != nil {
			return nil, err
		}
	}
	if !p.inBody {
		return nil, nil
	}
	return p.tune, nil
}

// startBody fixes the default unit note length once the header is complete
func (p *parser) startBody() {
	p.inBody = true
	if !p.unitSet {
		if p.tune.meterRatio < 0.75 {
			p.tune.UnitLength = 1.0 / 16
		} else {
			p.tune.UnitLength = 1.0 / 8
		}
	}
}

func (p *parser) field(name byte, value string) error {
	value = strings.TrimSpace(value)
	switch name {
	case 'X':
		if n, err := strconv.Atoi(strings.TrimSpace(stripComment(value))); err == nil {
			p.tune.Number = n
		}
	case 'T':
		if p.tune.Title == "" {
			p.tune.Title = value
		}
	case 'C':
		if !p.inBody {
			p.tune.Composer = value
		}
	case 'M':
		return p.meter(value)
	case 'L':
		unit, err := parseFraction(stripComment(value))
		if err != nil || unit <= 0 {
			return fmt.Errorf("invalid unit note length %q", value)
		}
		p.tune.UnitLength = unit
		p.unitSet = true
	case 'Q':
		tempo, err := p.parseTempo(value)
		if err != nil {
			return err
		}
		p.tune.Tempo = tempo
	case 'K':
		sig, name, err := parseKey(value)
		if err != nil {
			return err
		}
		p.key = sig
		if p.tune.Key == "" || p.inBody {
			p.tune.Key = name
		}
		if !p.inBody {
			p.startBody()
		}
	}
	return nil
}

func (p *parser) meter(value string) error {
	v := strings.TrimSpace(stripComment(value))
	switch v {
	case "", "none":
		p.tune.Meter = ""
		p.tune.meterRatio = 1
		return nil
	case "C":
		p.tune.Meter, p.tune.meterRatio = "4/4", 1
		return nil
	case "C|":
		p.tune.Meter, p.tune.meterRatio = "2/2", 1
		return nil
	}
	ratio, err := parseFraction(v)
	if err != nil || ratio <= 0 {
		return fmt.Errorf("invalid meter %q", value)
	}
	p.tune.Meter = v
	p.tune.meterRatio = ratio
	return nil
}

// parseTempo understands "1/4=120", "120" (in unit lengths) and quoted text
func (p *parser) parseTempo(value string) (int, error) {
	v := stripComment(value)
	for strings.Count(v, `"`) >= 2 {
		i := strings.IndexByte(v, '"')
		j := strings.IndexByte(v[i+1:], '"')
		v = v[:i] + v[i+1+j+1:]
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return p.tune.Tempo, nil
	}

	beat := p.tune.UnitLength
	if beat == 0 {
		beat = quarter
	}
	bpmText := v
	if i := strings.IndexByte(v, '='); i >= 0 {
		total := 0.0
		for _, f := range strings.Fields(v[:i]) {
			frac, err := parseFraction(f)
			if err != nil {
				return 0, fmt.Errorf("invalid tempo %q", value)
			}
			total += frac
		}
		if total > 0 {
			beat = total
		}
		bpmText = strings.TrimSpace(v[i+1:])
	}
	bpm, err := strconv.Atoi(bpmText)
	if err != nil || bpm <= 0 {
		return 0, fmt.Errorf("invalid tempo %q", value)
	}
	quarters := int(float64(bpm)*beat/quarter + 0.5)
	if quarters <= 0 {
		return 0, fmt.Errorf("invalid tempo %q", value)
	}
	return quarters, nil
}

func parseFraction(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0, err
	}
	if !found {
		return float64(n), nil
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid fraction %q", s)
	}
	return float64(n) / float64(d), nil
}

// body tokenizes one line of music
func (p *parser) body(line string) error {
	s := line
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '%':
			return nil
		case c == '"':
			i = skipPast(s, i+1, '"')
		case c == '!' || c == '+':
			i = skipPast(s, i+1, c)
		case c == '{':
			i = skipPast(s, i+1, '}')
		case c == '[':
			next, err := p.bracket(s, i)
			if err != nil {
				return err
			}
			i = next
		case c == '|' || c == ':':
			i = p.barLine(s, i)
		case c == '(':
			i = p.tupletStart(s, i+1)
		case c == '-':
			if n := len(p.tune.Events); n > 0 {
				p.tune.Events[n-1].tied = true
			}
			i++
		case c == '>' || c == '<':
			i = p.brokenRhythm(s, i)
		case c == 'Z':
			i = p.multiRest(s, i+1)
		case isNoteStart(c):
			ev, next := p.note(s, i)
			p.add(ev)
			i = next
		default:
			i++
		}
	}
	return nil
}

func skipPast(s string, i int, end byte) int {
	j := strings.IndexByte(s[i:], end)
	if j < 0 {
		return len(s)
	}
	return i + j + 1
}

func isNoteStart(c byte) bool {
	switch c {
	case '^', '_', '=', 'z', 'x':
		return true
	}
	_, ok := letterSemitones[c]
	if ok {
		return true
	}
	_, ok = letterSemitones[c-('a'-'A')]
	return c >= 'a' && c <= 'g' && ok
}

// bracket handles inline fields, variant endings, thick bars and chords
func (p *parser) bracket(s string, i int) (int, error) {
	if i+2 < len(s) && isFieldLine(s[i+1:]) {
		end := skipPast(s, i+1, ']')
		inner := strings.TrimSuffix(s[i+1:end], "]")
		return end, p.field(inner[0], inner[2:])
	}
	if i+1 < len(s) && (s[i+1] == '|' || (s[i+1] >= '0' && s[i+1] <= '9')) {
		j := i + 1
		for j < len(s) && (s[j] == '|' || (s[j] >= '0' && s[j] <= '9') || s[j] == ',' || s[j] == '-') {
			j++
		}
		if s[i+1] == '|' {
			p.closeMeasure()
		}
		return j, nil
	}

	// chord: pitches share the first note's length
	var pitches []uint8
	beats := 0.0
	j := i + 1
	for j < len(s) && s[j] != ']' {
		if isNoteStart(s[j]) {
			ev, next := p.note(s, j)
			if len(ev.Pitches) > 0 {
				pitches = append(pitches, ev.Pitches...)
				if beats == 0 {
					beats = ev.Beats
				}
			}
			j = next
			continue
		}
		j++
	}
	if j < len(s) {
		j++
	}
	mul, next := parseLength(s, j)
	if len(pitches) == 0 {
		return next, nil
	}
	p.add(Event{Pitches: pitches, Beats: beats * mul})
	return next, nil
}

func (p *parser) barLine(s string, i int) int {
	j := i
	sawBar := false
	for j < len(s) && (s[j] == '|' || s[j] == ':' || s[j] == ']') {
		if s[j] == '|' {
			sawBar = true
		}
		j++
	}
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++ // variant ending after a bar, e.g. |1
	}
	if sawBar {
		p.closeMeasure()
	}
	return j
}

func (p *parser) closeMeasure() {
	p.tune.Bars++
	p.measure = map[string]int{}
}

func (p *parser) tupletStart(s string, i int) int {
	if i >= len(s) || s[i] < '2' || s[i] > '9' {
		return i // slur
	}
	n := int(s[i] - '0')
	i++
	q := 2
	switch n {
	case 2, 4, 8:
		q = 3
	case 3, 6:
		q = 2
	}
	// (p:q:r form
	if i < len(s) && s[i] == ':' {
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if v, err := strconv.Atoi(s[i+1 : j]); err == nil && v > 0 {
			q = v
		}
		i = j
		if i < len(s) && s[i] == ':' {
			j = i + 1
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			if v, err := strconv.Atoi(s[i+1 : j]); err == nil && v > 0 {
				n2 := v
				p.tuplet = n2
				p.tupletMul = float64(q) / float64(n)
				return j
			}
			i = j
		}
	}
	p.tuplet = n
	p.tupletMul = float64(q) / float64(n)
	return i
}

func (p *parser) brokenRhythm(s string, i int) int {
	c := s[i]
	n := 0
	for i < len(s) && s[i] == c {
		n++
		i++
	}
	short := 1.0
	for k := 0; k < n; k++ {
		short /= 2
	}
	long := 2 - short
	if last := len(p.tune.Events); last > 0 {
		if c == '>' {
			p.tune.Events[last-1].Beats *= long
			p.broken = short
		} else {
			p.tune.Events[last-1].Beats *= short
			p.broken = long
		}
	}
	return i
}

func (p *parser) multiRest(s string, i int) int {
	bars, next := 1, i
	for next < len(s) && s[next] >= '0' && s[next] <= '9' {
		next++
	}
	if next > i {
		bars, _ = strconv.Atoi(s[i:next])
	}
	measure := p.tune.meterRatio * 4
	p.add(Event{Beats: float64(bars) * measure})
	return next
}

// note parses accidentals, a pitch letter or rest, octave marks and a length
func (p *parser) note(s string, i int) (Event, int) {
	accidental, explicit := 0, false
	for i < len(s) && (s[i] == '^' || s[i] == '_' || s[i] == '=') {
		explicit = true
		switch s[i] {
		case '^':
			accidental++
		case '_':
			accidental--
		case '=':
			accidental = 0
		}
		i++
	}
	if i >= len(s) {
		return Event{}, i
	}

	c := s[i]
	i++
	if c == 'z' || c == 'x' {
		mul, next := parseLength(s, i)
		return Event{Beats: p.tune.UnitLength * 4 * mul}, next
	}

	letter, octave := c, 5
	if c >= 'a' && c <= 'g' {
		letter = c - ('a' - 'A')
		octave = 6
	}
	semitone, ok := letterSemitones[letter]
	if !ok {
		return Event{}, i
	}
	for i < len(s) && (s[i] == '\'' || s[i] == ',') {
		if s[i] == '\'' {
			octave++
		} else {
			octave--
		}
		i++
	}

	id := fmt.Sprintf("%c%d", letter, octave)
	if explicit {
		p.measure[id] = accidental
	} else if acc, ok := p.measure[id]; ok {
		accidental = acc
	} else {
		accidental = p.key[letter]
	}

	pitch := octave*12 + semitone + accidental
	if pitch < 0 {
		pitch = 0
	}
	if pitch > 127 {
		pitch = 127
	}

	mul, next := parseLength(s, i)
	return Event{Pitches: []uint8{uint8(pitch)}, Beats: p.tune.UnitLength * 4 * mul}, next
}

// parseLength reads an ABC length multiplier such as 2, /, //, 3/2 or /4
func parseLength(s string, i int) (float64, int) {
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	num := 1.0
	if j > i {
		n, _ := strconv.Atoi(s[i:j])
		num = float64(n)
	}
	den := 1.0
	for j < len(s) && s[j] == '/' {
		j++
		k := j
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > j {
			d, _ := strconv.Atoi(s[j:k])
			if d > 0 {
				den *= float64(d)
			}
			j = k
		} else {
			den *= 2
		}
	}
	return num / den, j
}

// add appends an event, applying ties, tuplets and broken rhythm
func (p *parser) add(ev Event) {
	if p.tuplet > 0 {
		ev.Beats *= p.tupletMul
		p.tuplet--
	}
	if p.broken != 0 {
		ev.Beats *= p.broken
		p.broken = 0
	}
	if ev.Beats <= 0 {
		return
	}
	if n := len(p.tune.Events); n > 0 {
		prev := &p.tune.Events[n-1]
		if prev.tied && samePitches(prev.Pitches, ev.Pitches) && !ev.IsRest() {
			prev.Beats += ev.Beats
			prev.tied = ev.tied
			return
		}
		prev.tied = false
	}
	p.tune.Events = append(p.tune.Events, ev)
}

func samePitches(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
