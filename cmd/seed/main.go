package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/coach-onboarding/internal/accounts"
	"github.com/hackgods/coach-onboarding/internal/availability"
	"github.com/hackgods/coach-onboarding/internal/config"
	"github.com/hackgods/coach-onboarding/internal/db"
	"github.com/hackgods/coach-onboarding/internal/pipeline"
	redisclient "github.com/hackgods/coach-onboarding/internal/redis"
	"github.com/hackgods/coach-onboarding/internal/survey"
)

const (
	calendarCount = 5
	prospectCount = 500
)

// Seeding goes through the services so every row satisfies the same rules
// as one created over the API.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer rdb.Close()

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)

	slots, err := availability.NewService(availability.NewPgRepository(pool), locker, cfg)
	if err != nil {
		log.Fatalf("availability service: %v", err)
	}
	prospects := pipeline.NewService(pipeline.NewPgRepository(pool), locker, slots,
		accounts.NewIssuer(accounts.NewPgStore(pool)), cfg)
	surveys := survey.NewService(survey.NewPgRepository(pool), locker,
		survey.WithRespondentKey([]byte(cfg.RespondentKey)))

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedCalendars(ctx, slots, calendarCount); err != nil {
		log.Fatalf("seed calendars: %v", err)
	}
	if err := seedProspects(ctx, prospects, prospectCount); err != nil {
		log.Fatalf("seed prospects: %v", err)
	}
	if err := seedOnboardingQuiz(ctx, surveys); err != nil {
		log.Fatalf("seed quiz: %v", err)
	}
	if err := seedFeedbackSurvey(ctx, surveys); err != nil {
		log.Fatalf("seed survey: %v", err)
	}

	log.Println("seed complete")
}

// seedCalendars gives each calendar hourly weekday slots between 09:00 and 17:00.
func seedCalendars(ctx context.Context, svc *availability.Service, count int) error {
	log.Printf("seeding %d calendars", count)

	timezones := []string{
		"UTC",
		"America/New_York",
		"America/Chicago",
		"America/Los_Angeles",
		"Europe/London",
	}

	for i := 0; i < count; i++ {
		cal, err := svc.CreateCalendar(ctx, availability.NewCalendar{
			Name:        gofakeit.Company() + " Orientation",
			MeetingLink: fmt.Sprintf("https://meet.example.com/%s", uuid.NewString()[:8]),
			Timezone:    timezones[gofakeit.Number(0, len(timezones)-1)],
		})
		if err != nil {
			return err
		}

		for day := time.Monday; day <= time.Friday; day++ {
			for hour := 9; hour < 17; hour++ {
				_, err := svc.CreateSlot(ctx, cal.ID, availability.NewSlot{
					DayOfWeek:   int(day),
					StartTime:   fmt.Sprintf("%02d:00", hour),
					EndTime:     fmt.Sprintf("%02d:00", hour+1),
					MaxBookings: gofakeit.Number(1, 3),
				})
				if err != nil {
					return err
				}
			}
		}
		log.Printf("calendar %s seeded (%s)", cal.ID, cal.Timezone)
	}

	log.Println("calendars seeded")
	return nil
}

func seedProspects(ctx context.Context, svc *pipeline.Service, count int) error {
	log.Printf("seeding %d prospects", count)

	for i := 0; i < count; i++ {
		phone := gofakeit.Phone()
		_, err := svc.CreateProspect(ctx, pipeline.NewProspect{
			Name:                gofakeit.Name(),
			Email:               gofakeit.Email(),
			Phone:               &phone,
			AssessmentCompleted: gofakeit.Bool(),
		})
		if err != nil {
			return err
		}
		if (i+1)%100 == 0 {
			log.Printf("prospects seeded: %d/%d", i+1, count)
		}
	}

	log.Println("prospects seeded")
	return nil
}

func seedOnboardingQuiz(ctx context.Context, svc *survey.Service) error {
	passing := 70
	quiz, err := svc.CreateSurvey(ctx, survey.Settings{
		Title:        "Coach Onboarding Quiz",
		Description:  "Checks the basics covered in orientation.",
		Type:         survey.TypeQuiz,
		ScoreMode:    survey.ScorePassFail,
		PassingScore: &passing,
		ShowResults:  true,
	})
	if err != nil {
		return err
	}

	questions := []survey.QuestionInput{
		{
			Type:       survey.MultipleChoice,
			Text:       "How far ahead can clients book a session?",
			IsRequired: true,
			Options: []survey.OptionInput{
				{Text: "Same day only"},
				{Text: "Up to 30 days", IsCorrect: true},
				{Text: "Any time"},
			},
		},
		{
			Type:       survey.MultipleSelect,
			Text:       "Which of these belong in a session summary?",
			IsRequired: true,
			Options: []survey.OptionInput{
				{Text: "Goals discussed", IsCorrect: true},
				{Text: "Agreed next steps", IsCorrect: true},
				{Text: "Client payment details"},
			},
		},
		{
			Type:       survey.MultipleChoice,
			Text:       "A client cancels an hour before. What happens to the slot?",
			IsRequired: true,
			Options: []survey.OptionInput{
				{Text: "It becomes bookable again", IsCorrect: true},
				{Text: "It stays blocked for the day"},
			},
		},
	}
	for _, q := range questions {
		if _, err := svc.AddQuestion(ctx, quiz.ID, q); err != nil {
			return err
		}
	}

	if _, err := svc.Publish(ctx, quiz.ID); err != nil {
		return err
	}
	log.Printf("quiz %s published", quiz.ID)
	return nil
}

func seedFeedbackSurvey(ctx context.Context, svc *survey.Service) error {
	s, err := svc.CreateSurvey(ctx, survey.Settings{
		Title:       "Orientation Feedback",
		Type:        survey.TypeSurvey,
		AllowRetake: true,
		IsAnonymous: true,
	})
	if err != nil {
		return err
	}

	maxLen := 1000
	questions := []survey.QuestionInput{
		{
			Type:       survey.LikertScale,
			Text:       "How useful was the orientation session?",
			IsRequired: true,
			Likert:     &survey.LikertConfig{MinValue: 1, MaxValue: 5, MinLabel: "Not useful", MaxLabel: "Very useful"},
		},
		{
			Type:      survey.TextLong,
			Text:      "What should we cover next time?",
			MaxLength: &maxLen,
		},
	}
	for _, q := range questions {
		if _, err := svc.AddQuestion(ctx, s.ID, q); err != nil {
			return err
		}
	}

	if _, err := svc.Publish(ctx, s.ID); err != nil {
		return err
	}
	log.Printf("survey %s published", s.ID)
	return nil
}
