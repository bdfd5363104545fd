package coordinator

import (
	"errors"
	"fmt"
	"strings"
)

// ViewportMode selects the interaction layout
type ViewportMode string

const (
	ViewportDesktop ViewportMode = "desktop"
	ViewportMobile  ViewportMode = "mobile"
)

// ErrInvalidViewportMode is returned for modes other than desktop and mobile
var ErrInvalidViewportMode = errors.New("invalid viewport mode")

// ParseViewportMode parses "desktop" or "mobile", ignoring case and spaces
func ParseViewportMode(s string) (ViewportMode, error) {
	switch m := ViewportMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ViewportDesktop, ViewportMobile:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q (must be desktop or mobile)", ErrInvalidViewportMode, s)
	}
}

// SidebarOpenByDefault reports whether the sidebar starts open in this mode
func (m ViewportMode) SidebarOpenByDefault() bool {
	return m != ViewportMobile
}
