package types

import (
	"regexp"
	"strings"
)

// MinPasswordLength is enforced client side before a profile update is sent.
const MinPasswordLength = 6

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks the login form before it is sent.
func (c *Credentials) Validate() error {
	if strings.TrimSpace(c.Login) == "" {
		return ErrEmptyLogin
	}
	if c.Password == "" {
		return ErrEmptyPassword
	}
	return nil
}

// Validate ensures every registration field is present and the email is well formed.
func (r *Registration) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(r.Login) == "" {
		return ErrEmptyLogin
	}
	if strings.TrimSpace(r.Email) == "" {
		return ErrEmptyEmail
	}
	if !emailRegex.MatchString(r.Email) {
		return ErrInvalidEmail
	}
	if r.Password == "" {
		return ErrEmptyPassword
	}
	return nil
}

// Validate requires the current password and at least one change.
// FUNCTIONAL DISCOVERY: A blank new password means "unchanged", matching
// the auth service which ignores whitespace-only values
func (p *ProfileUpdate) Validate() error {
	if p.CurrentPassword == "" {
		return ErrEmptyPassword
	}
	if p.NewName == nil && p.NewPassword == nil {
		return ErrNothingToUpdate
	}
	if p.NewName != nil && strings.TrimSpace(*p.NewName) == "" {
		return ErrEmptyName
	}
	if p.NewPassword != nil && len(strings.TrimSpace(*p.NewPassword)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// Validate rejects blank code, unknown languages and missing task IDs.
func (s *SubmissionRequest) Validate() error {
	if s.TaskID <= 0 {
		return ErrInvalidTaskID
	}
	if !IsValidLanguage(s.Language) {
		return ErrInvalidLanguage
	}
	if strings.TrimSpace(s.Code) == "" {
		return ErrEmptyCode
	}
	return nil
}

func (c *NewComment) Validate() error {
	if strings.TrimSpace(c.Description) == "" {
		return ErrEmptyComment
	}
	return nil
}

// IsValidLanguage reports whether the judge accepts the language tag.
func IsValidLanguage(lang Language) bool {
	switch lang {
	case LanguagePython, LanguageJavaScript, LanguageCPP:
		return true
	}
	return false
}

// ParseDifficulty normalizes user input such as "easy" to a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	}
	return "", ErrInvalidDifficulty
}
