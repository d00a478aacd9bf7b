// Package doc turns a markdown file into the paginated block surface the
// engine reads from. Blocks are the document's top-level markdown nodes;
// pages are fixed-size runs of blocks.
package doc

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgnsrekt/readsync/read"
)

// DefaultBlocksPerPage is the page size when none is configured.
const DefaultBlocksPerPage = 8

// Source implements read.PageSource over a markdown file on disk.
type Source struct {
	path     string
	pageSize int
	md       goldmark.Markdown

	mu       sync.Mutex
	pages    [][]read.Block
	watcher  *fsnotify.Watcher
	handlers map[int]func()
	nextID   int
}

// Open reads and paginates a markdown document.
func Open(path string, blocksPerPage int) (*Source, error) {
	if blocksPerPage <= 0 {
		blocksPerPage = DefaultBlocksPerPage
	}
	s := &Source{
		path:     path,
		pageSize: blocksPerPage,
		md:       goldmark.New(),
		handlers: make(map[int]func()),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// PageCount returns the number of pages.
func (s *Source) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Blocks returns the ordered blocks of a page.
func (s *Source) Blocks(page int) ([]read.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 0 || page >= len(s.pages) {
		return nil, fmt.Errorf("no such page %d", page)
	}
	return s.pages[page], nil
}

// Watch registers a re-render callback fired after the file changes on
// disk and the pages have been rebuilt. The returned func removes the
// callback.
func (s *Source) Watch(onChange func()) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("watching document: %w", err)
		}
		if err := w.Add(s.path); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching document: %w", err)
		}
		s.watcher = w
		go s.watchLoop(w)
	}

	id := s.nextID
	s.nextID++
	s.handlers[id] = onChange
	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}, nil
}

// Close stops the watcher.
func (s *Source) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		return w.Close()
	}
	return nil
}

// watchLoop coalesces bursts of file events into one reload.
func (s *Source) watchLoop(w *fsnotify.Watcher) {
	var pending <-chan time.Time
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(150 * time.Millisecond)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Debug("document watcher", "err", err)
		case <-pending:
			pending = nil
			if err := s.reload(); err != nil {
				log.Warn("reloading document", "path", s.path, "err", err)
				continue
			}
			s.mu.Lock()
			handlers := make([]func(), 0, len(s.handlers))
			for _, h := range s.handlers {
				handlers = append(handlers, h)
			}
			s.mu.Unlock()
			for _, h := range handlers {
				h()
			}
		}
	}
}

// reload parses the file and rebuilds the pages.
func (s *Source) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	texts := s.extractBlocks(raw)
	var pages [][]read.Block
	for start := 0; start < len(texts); start += s.pageSize {
		end := start + s.pageSize
		if end > len(texts) {
			end = len(texts)
		}
		page := len(pages)
		var blocks []read.Block
		for i, t := range texts[start:end] {
			blocks = append(blocks, read.Block{Page: page, Index: i, Text: t})
		}
		pages = append(pages, blocks)
	}
	if len(pages) == 0 {
		pages = [][]read.Block{{}}
	}

	s.mu.Lock()
	s.pages = pages
	s.mu.Unlock()
	return nil
}

// extractBlocks flattens the markdown block AST into display text. List
// items become individual blocks so a bullet reads as its own unit.
func (s *Source) extractBlocks(src []byte) []string {
	root := s.md.Parser().Parse(text.NewReader(src))

	var out []string
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				if t := blockText(item, src); t != "" {
					out = append(out, t)
				}
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			// Code and raw HTML are not prose; the reader skips them.
		case *ast.ThematicBreak:
		default:
			if t := blockText(n, src); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// blockText collects the inline text of a block node, joining soft-wrapped
// segments with spaces.
func blockText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.AutoLink:
			sb.Write(t.URL(src))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
