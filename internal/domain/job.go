package domain

import "time"

// JobStatus — состояние задания discovery/импорта.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobStopped    JobStatus = "stopped"
)

// Active сообщает, считается ли задание выполняющимся (конвейер «запущен»).
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobProcessing
}

// JobMode определяет, что делать с найденными товарами.
type JobMode string

const (
	// JobModeConveyor сразу ставит найденные товары на конвейер (pending).
	JobModeConveyor JobMode = "conveyor"
	// JobModeImport только сохраняет товары (idle), конвейер запускается вручную.
	JobModeImport JobMode = "import"
)

func (m JobMode) Valid() bool {
	return m == JobModeConveyor || m == JobModeImport
}

// InitialConveyorStatus — статус конвейера для товаров, найденных заданием в этом режиме.
func (m JobMode) InitialConveyorStatus() ConveyorStatus {
	if m == JobModeConveyor {
		return ConveyorPending
	}
	return ConveyorIdle
}

// Job — задание очереди discovery.
type Job struct {
	ID        int64
	Mode      JobMode
	Query     string
	Page      int
	Status    JobStatus
	Log       string
	CreatedAt time.Time
}

func NewJob(mode JobMode, query string, page int) *Job {
	return &Job{
		Mode:   mode,
		Query:  query,
		Page:   page,
		Status: JobPending,
	}
}

// DiscoveredItem — товар, найденный внешним источником.
type DiscoveredItem struct {
	Name        string
	Brand       string
	Description string
	Price       int64
	Specs       Specs
}
