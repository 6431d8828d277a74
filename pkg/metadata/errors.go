// pkg/metadata/errors.go

package metadata

import (
	"errors"
	"fmt"
)

// MySQL server error numbers the bootstrap cares about.
const errDuplicateEntry = 1062

// ServerError is a typed database server error, so upper layers can
// reclassify specific server responses into domain vocabulary without string
// matching.
type ServerError struct {
	Code    uint16
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// IsDuplicateEntry reports whether err is a uniqueness violation, e.g. a
// router name already registered for this host.
func IsDuplicateEntry(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Code == errDuplicateEntry
}
