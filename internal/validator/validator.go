package validator

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"time"
	"unicode"

	"github.com/katatrina/schoolhub-BE/internal/notification"
)

var (
	hasDigit   = regexp.MustCompile(`[0-9]`)
	hasLower   = regexp.MustCompile(`[a-z]`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasSpecial = regexp.MustCompile(`[\W_]`)
)

func ValidateString(value string, minLength int, maxLength int) error {
	n := len(value)
	if n < minLength || n > maxLength {
		return fmt.Errorf("must contain from %d to %d characters", minLength, maxLength)
	}

	return nil
}

func ValidatePassword(value string) error {
	err := errors.New("must be between 8 and 30 characters long, contain at least one digit, one lowercase letter, one uppercase letter, and one special character")

	if len(value) < 8 || len(value) > 30 {
		return err
	}
	if !hasDigit.MatchString(value) || !hasLower.MatchString(value) ||
		!hasUpper.MatchString(value) || !hasSpecial.MatchString(value) {
		return err
	}

	return nil
}

func ValidateEmail(value string) error {
	if err := ValidateString(value, 6, 200); err != nil {
		return err
	}

	if _, err := mail.ParseAddress(value); err != nil {
		return fmt.Errorf("is not a valid email address")
	}

	return nil
}

func ValidateFullName(value string) error {
	if err := ValidateString(value, 3, 100); err != nil {
		return err
	}

	for _, r := range value {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return fmt.Errorf("must contain only letters or spaces")
		}
	}

	return nil
}

func ValidateRole(value string) error {
	if !notification.Role(value).Valid() {
		return fmt.Errorf("must be one of student, teacher, parent, admin")
	}
	return nil
}

// ValidatePublishAt rejects publish times further away than horizon.
func ValidatePublishAt(publishAt, now time.Time, horizon time.Duration) error {
	if publishAt.After(now.Add(horizon)) {
		return fmt.Errorf("must be within %s from now", horizon)
	}
	return nil
}
