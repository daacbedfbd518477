package database

type KeywordStore interface {
	List() []string
	Count() int

	Add(keyword string) ([]string, error)
	Remove(keyword string) ([]string, error)
}

type ScheduleStore interface {
	Get() ScheduleConfig
	Update(intervalHours int) (ScheduleConfig, error)
}

type RunStateStore interface {
	Load() (RunState, error)
	Save(state RunState) error
}

type HistoryStore interface {
	Append(entry HistoryEntry) error
	List(limit int) []HistoryEntry
	Latest() *HistoryEntry
	Capacity() int
}
