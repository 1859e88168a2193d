// Package browsers is the single place a family name is turned into a
// launcher, and keeps named sessions on top of it.
package browsers

import (
	"fmt"

	"github.com/entrhq/browserkit/pkg/families/chromium"
	"github.com/entrhq/browserkit/pkg/families/firefox"
	"github.com/entrhq/browserkit/pkg/families/webkit"
	"github.com/entrhq/browserkit/pkg/launcher"
)

// Names lists the supported families.
func Names() []string {
	return []string{chromium.Name, firefox.Name, webkit.Name}
}

// Family returns the family registered under name.
func Family(name string) (launcher.Family, error) {
	switch name {
	case chromium.Name:
		return chromium.New(), nil
	case firefox.Name:
		return firefox.New(), nil
	case webkit.Name:
		return webkit.New(), nil
	default:
		return nil, &launcher.ValidationError{
			Field:   "browser",
			Message: fmt.Sprintf("unknown browser %q, expected one of %v", name, Names()),
		}
	}
}

// NewLauncher returns a launcher for the named family.
func NewLauncher(name string, opts ...launcher.Option) (*launcher.Launcher, error) {
	f, err := Family(name)
	if err != nil {
		return nil, err
	}
	return launcher.New(f, opts...)
}
