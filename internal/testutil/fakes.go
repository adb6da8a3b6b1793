// Package testutil holds scripted collaborators shared by package tests.
package testutil

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"docrag/internal/domain"
)

// ErrScripted is returned by fakes configured to fail.
var ErrScripted = errors.New("scripted failure")

// FakeLoader returns fixed documents, an error, or panics.
type FakeLoader struct {
	LoaderName string
	Docs       []domain.SourceDocument
	Err        error
	Panic      bool

	mu    sync.Mutex
	calls int
}

func (l *FakeLoader) Name() string {
	if l.LoaderName == "" {
		return "fake"
	}
	return l.LoaderName
}

func (l *FakeLoader) Load(_ context.Context, _ string) ([]domain.SourceDocument, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()

	if l.Panic {
		panic("malformed input")
	}
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Docs, nil
}

// Calls reports how many times Load ran.
func (l *FakeLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Pages builds one document per page text, with page metadata set.
func Pages(source string, pages ...string) []domain.SourceDocument {
	docs := make([]domain.SourceDocument, len(pages))
	for i, p := range pages {
		docs[i] = domain.SourceDocument{
			Text: p,
			Metadata: map[string]string{
				domain.MetaSource: source,
				domain.MetaPage:   strconv.Itoa(i + 1),
			},
		}
	}
	return docs
}

// ScriptedLLM answers with the first rule whose substring occurs in the last
// message, or with Default. Rules map a substring to a reply; a reply equal to
// "ERROR" makes the call fail.
type ScriptedLLM struct {
	Rules   []Rule
	Default string
	Err     error

	mu    sync.Mutex
	calls [][]domain.ChatMessage
}

type Rule struct {
	Contains string
	Reply    string
}

func (l *ScriptedLLM) ModelName() string { return "scripted" }

func (l *ScriptedLLM) Invoke(_ context.Context, messages []domain.ChatMessage) (string, error) {
	l.mu.Lock()
	l.calls = append(l.calls, append([]domain.ChatMessage(nil), messages...))
	l.mu.Unlock()

	if l.Err != nil {
		return "", l.Err
	}
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	for _, r := range l.Rules {
		if strings.Contains(last, r.Contains) {
			if r.Reply == "ERROR" {
				return "", ErrScripted
			}
			return r.Reply, nil
		}
	}
	return l.Default, nil
}

// Calls returns a copy of every message list the model received.
func (l *ScriptedLLM) Calls() [][]domain.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]domain.ChatMessage(nil), l.calls...)
}

// FailingEmbedder fails every call.
type FailingEmbedder struct{ Dim int }

func (e FailingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrScripted
}

func (e FailingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrScripted
}

func (e FailingEmbedder) Dimension() int    { return e.Dim }
func (e FailingEmbedder) ModelName() string { return "failing" }
