package ims

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/podwatch/podwatch/pkg/types"
)

// Configured sets up the portal provider based on flags.
func Configured() Portal {
	provider := lflag.String("portal-provider", "ims", "Portal provider to use (available: ims, mock)")
	baseURL := lflag.String("ims-base-url", "https://ims.ssd.sk", "Base URL of the IMS portal")
	username := lflag.String("ims-username", "", "IMS portal username")
	password := lflag.String("ims-password", "", "IMS portal password")
	timeout := lflag.Duration("ims-timeout", time.Minute, "Portal request timeout")
	timezone := lflag.String("portal-timezone", "Europe/Bratislava", "Civil calendar period ranges are computed in")

	var p struct{ Portal }

	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("failed to load portal timezone %q: %v", *timezone, err))
		}

		switch *provider {
		case "ims":
			if *username == "" || *password == "" {
				panic("ims-username and ims-password are required for the ims portal provider")
			}
			p.Portal = NewClient(*baseURL, types.Credentials{
				Username: *username,
				Password: *password,
			}, loc, *timeout)
		case "mock":
			p.Portal = NewMock(loc)
		default:
			panic(fmt.Sprintf("unknown portal provider: %s", *provider))
		}
	})

	return &p
}
