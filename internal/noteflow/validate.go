// Package noteflow implements the note creation and deletion flows on top of
// the notes API and the list cache.
package noteflow

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/models"
)

// Field limits for a note draft.
const (
	TitleMinLen   = 3
	TitleMaxLen   = 50
	ContentMaxLen = 500
)

// Field error messages.
const (
	MsgTitleRequired   = "Title is required"
	MsgTitleTooShort   = "Title must be at least 3 characters"
	MsgTitleTooLong    = "Title is too long"
	MsgContentRequired = "Content is required"
	MsgContentTooLong  = "Content is too long"
	MsgTagRequired     = "Tag is required"
	MsgTagInvalid      = "Tag is invalid"
)

func tagChoices() []any {
	out := make([]any, len(models.Tags))
	for i, t := range models.Tags {
		out[i] = t
	}
	return out
}

// draftRules declares the constraints of every draft field. Rules run on the
// trimmed payload, which is what gets submitted.
func draftRules(d *models.FormDraft) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&d.Title,
			validation.Required.Error(MsgTitleRequired),
			validation.RuneLength(TitleMinLen, 0).Error(MsgTitleTooShort),
			validation.RuneLength(0, TitleMaxLen).Error(MsgTitleTooLong),
		),
		validation.Field(&d.Content,
			validation.Required.Error(MsgContentRequired),
			validation.RuneLength(0, ContentMaxLen).Error(MsgContentTooLong),
		),
		validation.Field(&d.Tag,
			validation.Required.Error(MsgTagRequired),
			validation.In(tagChoices()...).Error(MsgTagInvalid),
		),
	}
}

// ValidateDraft checks d locally. It returns nil or an
// *apperr.ValidationError keyed by JSON field name.
func ValidateDraft(d models.FormDraft) error {
	p := d.Payload()
	err := validation.ValidateStruct(&p, draftRules(&p)...)
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	return apperr.NewValidationError(verrs)
}
