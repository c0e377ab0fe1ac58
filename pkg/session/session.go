// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session persists chat threads and their message history.
//
// A thread belongs to one user and holds the user questions and the final
// answers of the team, oldest first. Intermediate agent messages are not
// stored.
package session

import (
	"context"
	"errors"
	"time"
)

// Entry roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrThreadNotFound is returned when a thread does not exist.
var ErrThreadNotFound = errors.New("thread not found")

// Entry is one persisted chat message.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread describes a conversation.
type Thread struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists threads and their history.
type Store interface {
	// CreateThread starts a new thread with a fresh id.
	CreateThread(ctx context.Context, userID, title string) (Thread, error)

	// Thread returns the thread metadata or ErrThreadNotFound.
	Thread(ctx context.Context, threadID string) (Thread, error)

	// Append adds entries to a thread, creating the thread for userID if it
	// does not exist yet.
	Append(ctx context.Context, threadID, userID string, entries ...Entry) error

	// History returns the last limit entries, oldest first. A limit of zero
	// or less returns everything.
	History(ctx context.Context, threadID string, limit int) ([]Entry, error)

	// Clear removes every entry of a thread. The thread itself stays.
	Clear(ctx context.Context, threadID string) error

	// Threads lists the threads of a user, most recently updated first.
	Threads(ctx context.Context, userID string) ([]Thread, error)

	Close() error
}

// titleRunes bounds the title derived from the first question of a thread.
const titleRunes = 30

// TitleFrom derives a thread title from its first question.
func TitleFrom(question string) string {
	r := []rune(question)
	if len(r) <= titleRunes {
		return question
	}
	return string(r[:titleRunes]) + "..."
}

func stamp(entries []Entry, now time.Time) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		out[i] = e
	}
	return out
}
