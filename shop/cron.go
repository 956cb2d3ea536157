package shop

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/pioneerstudio/patternshop/credits"
)

// ExpireReport is the result of a scheduled expiry run.
type ExpireReport struct {
	credits.ExpireResult
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ExpireCredits runs the credit expiry job. When a cron secret is configured, authorization
// must be "Bearer <secret>".
func (s *Service) ExpireCredits(ctx context.Context, authorization string) (ExpireReport, error) {
	if s.cfg.CronSecret != "" {
		want := "Bearer " + s.cfg.CronSecret
		if subtle.ConstantTimeCompare([]byte(authorization), []byte(want)) != 1 {
			return ExpireReport{}, unauthorized("Unauthorized")
		}
	}
	res, err := s.credits.ExpireOld(ctx)
	if err != nil {
		return ExpireReport{}, err
	}
	return ExpireReport{
		ExpireResult: res,
		Success:      true,
		Message:      "Credit expiration completed",
		Timestamp:    s.clock(),
	}, nil
}
