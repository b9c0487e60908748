package download

import "github.com/libretto-pm/libretto/pkg/perr"

func errInvalidSource(src string) error {
	return perr.New(perr.KindInput, "download: invalid source URL %q", src)
}
