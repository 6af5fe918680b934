package models

// Origin values for ActiveMessage records.
const (
	OriginLive     = "live"
	OriginSnapshot = "snapshot"
)

// ActiveMessage is an in-flight message record owned by the message cache.
// Live-sourced records always win over snapshot-sourced ones during merge.
type ActiveMessage struct {
	ID          string `json:"id"`
	Text        string `json:"text,omitempty"`
	TS          int64  `json:"ts_ms,omitempty"`
	SenderAlias string `json:"sender_alias,omitempty"`
	// ThreadAliases holds every thread identifier observed for this message.
	// The same thread is commonly known under at least two distinct ids
	// which are not guaranteed equal.
	ThreadAliases []string `json:"thread_aliases,omitempty"`
	ContentType   string   `json:"content_type,omitempty"`
	Origin        string   `json:"origin"`
	StoredAt      int64    `json:"stored_at_ms"`
}

// AddThreadAlias records an additional thread identifier, ignoring empty
// strings and duplicates.
func (m *ActiveMessage) AddThreadAlias(id string) {
	if id == "" {
		return
	}
	for _, a := range m.ThreadAliases {
		if a == id {
			return
		}
	}
	m.ThreadAliases = append(m.ThreadAliases, id)
}

// DeletedMessage is a resolved deletion event owned by the ledger.
// The deleting party is never stored; it is computed at read time from
// SenderAlias and the current alias tables, because alias data may keep
// arriving after the entry was written.
type DeletedMessage struct {
	ID            string   `json:"id"`
	Text          string   `json:"text,omitempty"`
	TS            int64    `json:"ts_ms,omitempty"`
	DeletedAt     int64    `json:"deleted_at_ms"`
	ThreadName    string   `json:"thread_display_name,omitempty"`
	ThreadAliases []string `json:"thread_aliases,omitempty"`
	SenderAlias   string   `json:"original_sender_alias,omitempty"`
}
