package domain

// EntityKind is the level a deletion request targets.
type EntityKind string

const (
	KindProject EntityKind = "project"
	KindStage   EntityKind = "stage"
	KindTask    EntityKind = "task"
)

// KnownKind reports whether k is one of the three reviewable levels.
func KnownKind(k EntityKind) bool {
	switch k {
	case KindProject, KindStage, KindTask:
		return true
	}
	return false
}

// Project statuses as stored by the system of record.
const (
	StatusPending         = "Pending"
	StatusApproved        = "Approved"
	StatusRevision        = "Revision"
	StatusCompleted       = "Completed"
	StatusPendingDeletion = "Pending Deletion"
	StatusPendingRevision = "Pending Revision"
)

// Task statuses. The empty string means "open".
const (
	TaskStatusCompleted       = "Completed"
	TaskStatusRevision        = "Revision"
	TaskStatusPendingDeletion = "Pending Deletion"
	TaskStatusPendingAddition = "Pending Addition"
)

// RequestStatusPending is the only request status the engine acts on.
const RequestStatusPending = "pending"

// Annotation carries the three derived deletion-request fields. They are
// recomputed on every reconciliation pass and never persisted by this core.
type Annotation struct {
	DeletionRequested     bool   `json:"deletion_requested,omitempty"`
	DeletionRequestStatus string `json:"deletion_request_status,omitempty"`
	DeletionRequestID     string `json:"deletion_request_id,omitempty"`
}

// ClearDeletionRequest resets all three annotation fields.
func (a *Annotation) ClearDeletionRequest() {
	a.DeletionRequested = false
	a.DeletionRequestStatus = ""
	a.DeletionRequestID = ""
}

// SetDeletionRequest flags the entity from a pending request.
func (a *Annotation) SetDeletionRequest(r DeletionRequest) {
	a.DeletionRequested = true
	a.DeletionRequestStatus = r.Status
	a.DeletionRequestID = r.ID
}

// PendingDeletion reports whether a pending request is attached.
func (a Annotation) PendingDeletion() bool {
	return a.DeletionRequested && a.DeletionRequestStatus == RequestStatusPending
}

type Resource struct {
	ID    string `json:"resource_id,omitempty"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

type ActivityEntry struct {
	TS     string `json:"ts" format:"date-time"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// GateItem is a single checklist line in a stage gate.
type GateItem struct {
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Gate is the checklist/assessment object attached to a stage.
type Gate struct {
	Title     string         `json:"title,omitempty"`
	Items     []GateItem     `json:"items,omitempty"`
	Completed bool           `json:"completed,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type Task struct {
	ID          string     `json:"task_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	DueDate     string     `json:"due_date,omitempty"`
	Resources   []Resource `json:"resources,omitempty"`
	Annotation
}

type Stage struct {
	ID    string `json:"stage_id"`
	Order int    `json:"order"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
	Gate  Gate   `json:"gate"`
	Annotation
}

type Project struct {
	ID            string          `json:"project_id"`
	OwnerID       string          `json:"owner_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	SubjectDomain string          `json:"subject_domain,omitempty"`
	Status        string          `json:"status,omitempty"`
	Stages        []Stage         `json:"stages"`
	Resources     []Resource      `json:"resources,omitempty"`
	Activity      []ActivityEntry `json:"activity,omitempty"`
	Annotation
}

// DeletionRequest is created externally and consumed read-only here.
type DeletionRequest struct {
	ID          string     `json:"request_id"`
	EntityType  EntityKind `json:"entity_type"`
	ProjectID   string     `json:"project_id"`
	StageID     string     `json:"stage_id,omitempty"`
	TaskID      string     `json:"task_id,omitempty"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	Requester   string     `json:"requester,omitempty"`
	Timestamp   string     `json:"timestamp,omitempty" format:"date-time"`
	EntityTitle string     `json:"entity_title,omitempty"`
}

// RequestDetail is one reviewer-facing row of a project's pending requests.
type RequestDetail struct {
	RequestID   string     `json:"request_id"`
	EntityType  EntityKind `json:"entity_type"`
	EntityTitle string     `json:"entity_title,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Requester   string     `json:"requester,omitempty"`
	Timestamp   string     `json:"timestamp,omitempty"`
	StageID     string     `json:"stage_id,omitempty"`
	TaskID      string     `json:"task_id,omitempty"`
}

// AnnotatedProject is a project plus the per-project reconciliation summary.
type AnnotatedProject struct {
	Project
	HasDeletionRequests    bool            `json:"has_deletion_requests"`
	DeletionRequestCount   int             `json:"deletion_request_count"`
	DeletionRequestDetails []RequestDetail `json:"deletion_request_details"`
}
