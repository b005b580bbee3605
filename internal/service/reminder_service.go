package service

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/model"
	"github.com/azariacindy/MyStudyMate/internal/notifier"
)

// Payload type values sent with every push.
const (
	PayloadAssignment = "assignment_reminder"
	PayloadSchedule   = "schedule_reminder"
)

// ReminderService turns due items into notification messages and builds
// the human-readable listings the bot shows.
type ReminderService struct {
	loc *time.Location
}

func NewReminderService(loc *time.Location) *ReminderService {
	return &ReminderService{loc: loc}
}

type stageCopy struct {
	title string
	body  string // %s is the assignment title
}

var stageMessages = map[model.Stage]stageCopy{
	model.StageHMinus3: {"⏰ Assignment Due in 3 Days!", `Don't forget: "%s" is due in 3 days. Start working on it!`},
	model.StageHMinus2: {"⏰ Assignment Due in 2 Days!", `"%s" is due in 2 days. Keep the momentum going!`},
	model.StageHMinus1: {"⏳ Assignment Due Tomorrow!", `"%s" is due tomorrow. Time to wrap it up!`},
	model.StageDDay:    {"🔥 Assignment Due Today!", `Urgent: "%s" is due today! Complete it before the deadline.`},
	model.StageHPlus1:  {"❗ Assignment Overdue!", `Assignment "%s" is 1 day overdue. Please complete it as soon as possible!`},
	model.StageHPlus2:  {"❗ Assignment Overdue!", `Assignment "%s" is 2 days overdue. Please complete it as soon as possible!`},
	model.StageHPlus3:  {"❗ Assignment Overdue!", `Assignment "%s" is 3 days overdue. Please complete it as soon as possible!`},
}

// AssignmentMessage builds the push for stage of a. The owner must be loaded.
func (s *ReminderService) AssignmentMessage(a model.Assignment, stage model.Stage) notifier.Message {
	c, ok := stageMessages[stage]
	if !ok {
		c = stageCopy{"📚 Assignment Reminder", `Reminder for "%s".`}
	}
	msg := notifier.Message{
		Title: c.title,
		Body:  fmt.Sprintf(c.body, strings.TrimSpace(a.Title)),
		Data: map[string]string{
			"type":              PayloadAssignment,
			"assignment_id":     strconv.FormatUint(uint64(a.ID), 10),
			"notification_type": string(stage),
			"deadline":          a.Deadline.In(s.loc).Format(time.RFC3339),
		},
	}
	if a.User != nil {
		msg.Channel = a.User.DeliveryChannel()
		msg.Token = a.User.DeviceToken
	}
	return msg
}

// ScheduleMessage builds the single lead-time push for ev.
func (s *ReminderService) ScheduleMessage(ev model.Schedule) notifier.Message {
	body := fmt.Sprintf("%s dimulai dalam %d menit (%s)", strings.TrimSpace(ev.Title), ev.ReminderMinutes, ev.StartTime)
	if loc := strings.TrimSpace(ev.Location); loc != "" {
		body += "\n📍 " + loc
	}
	msg := notifier.Message{
		Title: "⏰ Kelas Akan Dimulai!",
		Body:  body,
		Data: map[string]string{
			"type":        PayloadSchedule,
			"schedule_id": strconv.FormatUint(uint64(ev.ID), 10),
			"title":       ev.Title,
			"start_time":  ev.StartTime,
			"location":    ev.Location,
		},
	}
	if ev.User != nil {
		msg.Channel = ev.User.DeliveryChannel()
		msg.Token = ev.User.DeviceToken
	}
	return msg
}

// AssignmentGroups splits open assignments by how their deadline relates
// to today.
type AssignmentGroups struct {
	Overdue  []model.Assignment
	DueToday []model.Assignment
	Upcoming []model.Assignment
}

func (s *ReminderService) Group(items []model.Assignment, now time.Time) AssignmentGroups {
	var g AssignmentGroups
	now = now.In(s.loc)
	today := clock.StartOfDay(now)
	for _, a := range items {
		if a.IsDone {
			continue
		}
		day := clock.StartOfDay(a.Deadline.In(s.loc))
		switch {
		case day.Before(today):
			g.Overdue = append(g.Overdue, a)
		case day.Equal(today):
			g.DueToday = append(g.DueToday, a)
		default:
			g.Upcoming = append(g.Upcoming, a)
		}
	}
	for _, list := range [][]model.Assignment{g.Overdue, g.DueToday, g.Upcoming} {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Deadline.Before(list[j].Deadline) })
	}
	return g
}

// AssignmentDigest renders grouped assignments as Telegram HTML.
func (s *ReminderService) AssignmentDigest(items []model.Assignment, now time.Time) string {
	g := s.Group(items, now)
	now = now.In(s.loc)

	var b strings.Builder
	b.WriteString("📋 <b>Assignments</b>\n")
	b.WriteString(fmt.Sprintf("🗓 %s\n", now.Format("02.01.2006")))

	section := func(header, empty string, list []model.Assignment) {
		b.WriteString("\n" + header + "\n")
		if len(list) == 0 {
			b.WriteString("— " + empty + "\n")
			return
		}
		for _, a := range list {
			b.WriteString(s.formatAssignment(a, now))
		}
	}
	section("⚠️ <b>Overdue</b>", "nothing overdue", g.Overdue)
	section("🔥 <b>Due today</b>", "nothing due today", g.DueToday)
	section("⏳ <b>Upcoming</b>", "nothing upcoming", g.Upcoming)

	return strings.TrimSpace(b.String())
}

func (s *ReminderService) formatAssignment(a model.Assignment, now time.Time) string {
	d := a.Deadline.In(s.loc)
	line := fmt.Sprintf("#%d %s\n   ⏰ %s", a.ID, html.EscapeString(strings.TrimSpace(a.Title)), d.Format("2006-01-02 15:04"))
	if !a.HasReminder {
		line += " · 🔕"
	}
	if !now.After(d) {
		days := int(clock.StartOfDay(d).Sub(clock.StartOfDay(now)).Hours() / 24)
		if days > 0 {
			line += fmt.Sprintf(" · %d day(s) left", days)
		}
	}
	if desc := strings.TrimSpace(a.Description); desc != "" {
		line += "\n   📝 " + html.EscapeString(desc)
	}
	return line + "\n"
}

// ScheduleDigest renders schedules as Telegram HTML, one per line.
func (s *ReminderService) ScheduleDigest(rows []model.Schedule) string {
	var b strings.Builder
	b.WriteString("📅 <b>Schedules</b>\n")
	if len(rows) == 0 {
		b.WriteString("— nothing scheduled\n")
		return strings.TrimSpace(b.String())
	}
	lastDate := ""
	for _, ev := range rows {
		if ev.Date != lastDate {
			b.WriteString(fmt.Sprintf("\n<b>%s</b>\n", ev.Date))
			lastDate = ev.Date
		}
		icon := "🟢"
		if ev.IsCompleted {
			icon = "✅"
		}
		b.WriteString(fmt.Sprintf("%s #%d %s–%s %s", icon, ev.ID, ev.StartTime, ev.EndTime, html.EscapeString(strings.TrimSpace(ev.Title))))
		if ev.Location != "" {
			b.WriteString(" 📍 " + html.EscapeString(ev.Location))
		}
		if ev.HasReminder && !ev.NotificationSent && !ev.IsCompleted {
			b.WriteString(fmt.Sprintf(" · 🔔 %dm", ev.ReminderMinutes))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
