package classifier

import (
	"fmt"
	"strings"

	"github.com/BradenHooton/loginguard/internal/models"
)

var hintCountries = map[string]bool{
	models.UnknownValue: true,
	"RU":                true,
	"CN":                true,
	"KP":                true,
	"IR":                true,
}

// AttemptText renders an attempt as the sentence sequence the model was trained on
func AttemptText(a models.AttemptRecord) string {
	userID := a.UserID
	if userID == "" {
		userID = "unknown"
	}
	status := "failed"
	if a.LoginSuccessful {
		status = "successful"
	}

	parts := []string{
		fmt.Sprintf("User %s from %s in %s", userID, a.IPAddress, a.Country),
		fmt.Sprintf("Email: %s", a.Email),
		fmt.Sprintf("Browser: %s on %s", a.Browser, a.OS),
		fmt.Sprintf("Login %s", status),
	}

	if hintCountries[a.Country] {
		parts = append(parts, "Suspicious country")
	}
	switch a.IPAddress {
	case "127.0.0.1", "localhost", "0.0.0.0":
		parts = append(parts, "Local IP address")
	}
	if strings.Contains(a.Browser, models.UnknownValue) || strings.Contains(strings.ToLower(a.Browser), "python") {
		parts = append(parts, "Suspicious browser")
	}

	return strings.Join(parts, ". ")
}
