// Package dashboard assembles the cross-project summary page.
package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/taskboard-labs/taskboard/internal/boardconfig"
	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/platform/activitylog"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

const (
	recentProjects  = 5
	upcomingLimit   = 10
	criticalLimit   = 5
	meetingsLimit   = 5
	recentEventsMax = 10
)

type ProjectLister interface {
	List(ctx context.Context, filter repo.ProjectFilter) ([]domain.Project, error)
}

type Service struct {
	repo     repo.DashboardRepository
	projects ProjectLister
	cfg      boardconfig.Config
	now      func() time.Time
}

func NewService(dashboards repo.DashboardRepository, projects ProjectLister, cfg boardconfig.Config) (*Service, error) {
	if dashboards == nil {
		return nil, errors.New("dashboard repository is required")
	}
	if projects == nil {
		return nil, errors.New("project repository is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{repo: dashboards, projects: projects, cfg: cfg, now: time.Now}, nil
}

type Summary struct {
	Stats            domain.DashboardStats
	RecentProjects   []domain.Project
	UpcomingTasks    []domain.Task
	CriticalTickets  []domain.Ticket
	UpcomingMeetings []domain.Meeting
	RecentActivity   []activitylog.Record
	GeneratedAt      time.Time
}

// Summary collects counters, the newest projects, tasks due within the
// configured window outside the done column, open critical tickets, meetings
// of the next day and the latest activity.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	now := s.now().UTC()
	meetingsTo := now.Add(domain.UpcomingMeetingWindow)
	stats, err := s.repo.Stats(ctx, s.cfg.DoneColumn, now, meetingsTo)
	if err != nil {
		return Summary{}, err
	}
	projects, err := s.projects.List(ctx, repo.ProjectFilter{Limit: recentProjects})
	if err != nil {
		return Summary{}, err
	}
	from := domain.Day(now)
	to := from.AddDate(0, 0, s.cfg.UpcomingDays)
	upcoming, err := s.repo.UpcomingTasks(ctx, from, to, s.cfg.DoneColumn, upcomingLimit)
	if err != nil {
		return Summary{}, err
	}
	critical, err := s.repo.CriticalTickets(ctx, criticalLimit)
	if err != nil {
		return Summary{}, err
	}
	meetings, err := s.repo.UpcomingMeetings(ctx, now, meetingsTo, meetingsLimit)
	if err != nil {
		return Summary{}, err
	}
	activity, err := s.repo.RecentActivity(ctx, recentEventsMax)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Stats:            stats,
		RecentProjects:   projects,
		UpcomingTasks:    upcoming,
		CriticalTickets:  critical,
		UpcomingMeetings: meetings,
		RecentActivity:   activity,
		GeneratedAt:      now,
	}, nil
}
