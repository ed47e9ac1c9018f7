package model

import "time"

// EventType distinguishes plain calendar entries from task-derived ones.
type EventType string

const (
	EventTypeEvent EventType = "event"
	EventTypeTask  EventType = "task"
)

// EventMode tells whether an event happens in person or online.
type EventMode string

const (
	ModeInPerson EventMode = "in-person"
	ModeRemote   EventMode = "remote"
)

// Event is a calendar entry owned by the backend.
//
// EndDate is expected to be >= StartDate but this is not enforced; an
// inverted event is shown on its start day only.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Location    string    `json:"location,omitempty"`
	Mode        EventMode `json:"mode,omitempty"`
	MeetingLink string    `json:"meetingLink,omitempty"`
	Type        EventType `json:"type"`
	TaskID      string    `json:"taskId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Source is empty for backend events and holds the subscription ID for
	// events coming from an ICS overlay.
	Source string `json:"-"`
}

// Priority of a task; higher is more urgent.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// TaskStatus is derived from the due date and completion flag, never stored.
type TaskStatus string

const (
	StatusCompleted TaskStatus = "completed"
	StatusOverdue   TaskStatus = "overdue"
	StatusToday     TaskStatus = "today"
	StatusTomorrow  TaskStatus = "tomorrow"
	StatusUpcoming  TaskStatus = "upcoming"
)

// Task is a to-do item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	// ScheduledDate is a YYYY-MM-DD day the task is planned for, distinct
	// from its deadline.
	ScheduledDate string     `json:"scheduledDate,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Status        TaskStatus `json:"status,omitempty"`
}

// CalendarDayView is the server-computed bundle for one date.
type CalendarDayView struct {
	Date       string  `json:"date"`
	Events     []Event `json:"events"`
	Tasks      []Task  `json:"tasks"`
	TotalItems int     `json:"totalItems"`
}

// MonthView is the server-computed bundle of day views for a month.
type MonthView struct {
	Year  int               `json:"year"`
	Month int               `json:"month"`
	Days  []CalendarDayView `json:"days"`
}

// DayIndex maps date keys to their day view.
func (m MonthView) DayIndex() map[string]CalendarDayView {
	out := make(map[string]CalendarDayView, len(m.Days))
	for _, d := range m.Days {
		out[d.Date] = d
	}
	return out
}

type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	NotebookID string    `json:"notebookId,omitempty"`
	Labels     []string  `json:"labels"`
	Pinned     bool      `json:"pinned"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Notebook struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type Link struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Labels      []string  `json:"labels"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BlocNote is the single free-text scratch-pad of a user.
type BlocNote struct {
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type User struct {
	ID        string `json:"id" yaml:"id"`
	Email     string `json:"email" yaml:"email"`
	Username  string `json:"username" yaml:"username"`
	FirstName string `json:"firstName,omitempty" yaml:"first_name,omitempty"`
	LastName  string `json:"lastName,omitempty" yaml:"last_name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty" yaml:"avatar_url,omitempty"`
}

// AuthTokens is returned by login, register and refresh.
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn,omitempty"`
	User         *User  `json:"user,omitempty"`
}

type Weather struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}
