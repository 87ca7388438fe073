package scanner

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

const birthdayPageSize = 200

// birthdayRe matches MM-DD with an optional leading year; separators may be
// '-', '/' or '.'.
var birthdayRe = regexp.MustCompile(`\b(?:(\d{4})[-/.])?(\d{1,2})[-/.](\d{1,2})\b`)

// ScanBirthdays creates one birthday trigger per person whose birthday is
// today, at most once per calendar day.
func (s *Scanner) ScanBirthdays(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	today := s.now().In(s.loc)
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc)

	for offset := 0; ; offset += birthdayPageSize {
		people, total, err := s.gw.People.List(ctx, crm.ListFilter{Limit: birthdayPageSize, Offset: offset})
		if err != nil {
			return res, fmt.Errorf("list people: %w", err)
		}
		for i := range people {
			p := &people[i]
			res.Subjects++
			if !HasBirthday(p, today) {
				continue
			}
			res.Hits++
			if err := s.recordBirthday(ctx, &res, p, midnight); err != nil {
				logger.Error("[Scanner] Recording birthday failed", "person_id", p.ID, "error", err)
			}
		}
		if offset+len(people) >= total || len(people) == 0 {
			break
		}
	}
	logger.Info("[Scanner] Birthday scan complete", "people", res.Subjects, "birthdays", res.Hits, "created", res.Created)
	return res, nil
}

func (s *Scanner) recordBirthday(ctx context.Context, res *ScanResult, p *domain.Person, midnight time.Time) error {
	_, existing, err := s.gw.Triggers.List(ctx, crm.ListFilter{
		PersonID:     &p.ID,
		Type:         string(domain.TriggerBirthday),
		CreatedSince: &midnight,
		Limit:        1,
	})
	if err != nil {
		return fmt.Errorf("list birthday triggers: %w", err)
	}
	if existing > 0 {
		res.Duplicates++
		return nil
	}

	_, err = s.gw.Triggers.Create(ctx, &domain.Trigger{
		AccountID:   p.AccountID,
		PersonID:    &p.ID,
		TriggerType: domain.TriggerBirthday,
		Status:      domain.TriggerNew,
		Content:     fmt.Sprintf("%s has a birthday today", p.FullName()),
	})
	if err != nil {
		return fmt.Errorf("create birthday trigger: %w", err)
	}
	res.Created++
	s.metrics.TriggerCreated(KindBirthdays)
	return nil
}

// HasBirthday reports whether p's structured birthday, or a date found in
// p's details, falls on today's month and day. Feb 29 birthdays are
// celebrated on Feb 28 in non-leap years.
func HasBirthday(p *domain.Person, today time.Time) bool {
	if p.Birthday != nil && sameDay(p.Birthday.Month(), p.Birthday.Day(), today) {
		return true
	}
	for _, m := range birthdayRe.FindAllStringSubmatch(p.Details, -1) {
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		if sameDay(time.Month(month), day, today) {
			return true
		}
	}
	return false
}

func sameDay(month time.Month, day int, today time.Time) bool {
	if month == today.Month() && day == today.Day() {
		return true
	}
	return month == time.February && day == 29 &&
		today.Month() == time.February && today.Day() == 28 && !isLeap(today.Year())
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
