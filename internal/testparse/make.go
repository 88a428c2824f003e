package testparse

import (
	"regexp"
	"strconv"
)

var (
	makeProgressRe  = regexp.MustCompile(`^\[\s*(\d+)%\]`)
	ninjaProgressRe = regexp.MustCompile(`^\[(\d+)/(\d+)\]`)
)

// ParseProgress reads the completion percentage from a make-style
// "[ 42%] Building ..." or ninja-style "[42/100] ..." line. ok is false
// for lines that carry no progress marker.
func ParseProgress(line string) (percent int, ok bool) {
	if m := makeProgressRe.FindStringSubmatch(line); m != nil {
		p, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		return p, true
	}
	if m := ninjaProgressRe.FindStringSubmatch(line); m != nil {
		done, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil || total == 0 {
			return 0, false
		}
		return done * 100 / total, true
	}
	return 0, false
}
