package memo

// NoticeKind distinguishes user-facing sync notices.
type NoticeKind string

const (
	NoticeCreated NoticeKind = "created"
	NoticeUpdated NoticeKind = "updated"
	NoticeFailed  NoticeKind = "failed"
)

// Notice is emitted after every sync that reached the remote service.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	DocID     string     `json:"doc"`
	Line      int        `json:"line"`
	ContactID string     `json:"contact_id"`
	MemoID    string     `json:"memo_id,omitempty"`
	Fallback  bool       `json:"fallback,omitempty"`
	Err       string     `json:"error,omitempty"`
}

// Message is the human-readable text of the notice.
func (n Notice) Message() string {
	switch n.Kind {
	case NoticeCreated:
		return "Memo created in Dex"
	case NoticeUpdated:
		return "Memo updated in Dex"
	default:
		return "Memo sync failed: " + n.Err
	}
}

// Notifier receives sync notices.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notice) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}
