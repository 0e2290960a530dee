package kstruct

import (
	"strconv"
	"strings"
)

// path accumulates a dotted field path (e.g. "header.flags[2].value") as
// the interpreter descends into nested types and repeated fields, so a
// deeply-nested ParseError can report exactly where it occurred.
type path struct {
	segments []string
}

func newPath(root string) *path {
	return &path{segments: []string{root}}
}

func (p *path) push(field string) *path {
	return &path{segments: append(append([]string(nil), p.segments...), field)}
}

func (p *path) pushIndex(idx int) *path {
	if len(p.segments) == 0 {
		return p
	}
	segs := append([]string(nil), p.segments...)
	last := segs[len(segs)-1]
	segs[len(segs)-1] = last + "[" + strconv.Itoa(idx) + "]"
	return &path{segments: segs}
}

func (p *path) String() string {
	return strings.Join(p.segments, ".")
}
