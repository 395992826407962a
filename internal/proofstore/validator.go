package proofstore

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dealerops/taskboard/internal/task"
	"github.com/dealerops/taskboard/pkg/cerr"
)

// Validator is the content oracle for proof uploads. Implementations reject
// files whose bytes do not look like acceptable evidence.
type Validator interface {
	Validate(u task.Upload) error
}

// sniffValidator ignores the client-declared content type and sniffs the
// payload itself.
type sniffValidator struct {
	allowed []string
}

// DefaultValidator accepts images, videos and PDF documents.
func DefaultValidator() Validator {
	return &sniffValidator{allowed: []string{"image/", "video/", "application/pdf"}}
}

func (v *sniffValidator) Validate(u task.Upload) error {
	if len(u.Data) == 0 {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("file %q is empty", u.FileName), nil)
	}
	detected := http.DetectContentType(u.Data)
	for _, prefix := range v.allowed {
		if strings.HasPrefix(detected, prefix) {
			return nil
		}
	}
	return cerr.NewError(cerr.InvalidArgument,
		fmt.Sprintf("file %q has unsupported content type %s", u.FileName, detected), nil)
}
