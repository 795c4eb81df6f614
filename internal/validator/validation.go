package validator

import (
	"errors"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

func ValidateCity(s string) (string, error) {
	c := strings.TrimSpace(s)
	if len(c) < 2 {
		return "", errors.New("invalid location name")
	}
	return c, nil
}

func ValidateDate(dateStr string) (time.Time, error) {
	t, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return time.Time{}, errors.New("invalid date, expected YYYY-MM-DD")
	}
	return t, nil
}

func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return errors.New("latitude out of range")
	}
	if lng < -180 || lng > 180 {
		return errors.New("longitude out of range")
	}
	return nil
}

// ValidateCurrency accepts ISO-4217 style three letter codes and returns them upper-cased.
func ValidateCurrency(s string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(s))
	if len(c) != 3 {
		return "", errors.New("invalid currency code")
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", errors.New("invalid currency code")
		}
	}
	return c, nil
}

func ValidateDateOrder(start, end time.Time) error {
	if end.Before(start) {
		return errors.New("end date before start date")
	}
	return nil
}
