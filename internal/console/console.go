// Package console is a line-oriented front end for a list session. Plain
// lines go to the search box; lines starting with "/" are commands.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/models"
	"github.com/starford/notehub/internal/session"
)

// Help lists the console commands.
const Help = `Type to search. Commands:
  /next, /prev, /page N    move between pages
  /tag NAME, /tag          filter by tag, or clear the filter
  /sort created|updated    change the order
  /new TITLE | CONTENT | TAG
                           create a note
  /rm ID                   delete a note
  /refresh                 reload the list
  /help                    show this help
  /quit                    leave`

// Console renders a session and feeds it user input.
type Console struct {
	s    *session.Session
	out  io.Writer
	last string
}

// New returns a console over s writing to out.
func New(s *session.Session, out io.Writer) *Console {
	return &Console{s: s, out: out}
}

// Run reads commands from in until EOF, /quit or ctx ends, re-rendering
// whenever the view changes.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := c.render(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.Handle(ctx, line)
			if err != nil {
				c.printf("! %s\n", err)
			}
			if quit {
				return nil
			}
			if err := c.render(); err != nil {
				return err
			}
		case <-c.s.Changes():
			if err := c.render(); err != nil {
				return err
			}
		}
	}
}

// Handle executes one input line. It reports whether the user asked to quit.
func (c *Console) Handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, c.s.Type(line)
	}
	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "quit", "q":
		return true, nil
	case "help":
		c.printf("%s\n", Help)
		return false, nil
	case "next":
		return false, moved(c.s.NextPage())
	case "prev":
		return false, moved(c.s.PrevPage())
	case "page":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("page: %q is not a number", arg)
		}
		return false, moved(c.s.SetPage(n))
	case "tag":
		if arg == "" {
			return false, c.s.SetTag("")
		}
		tag, err := models.ParseTag(arg)
		if err != nil {
			return false, err
		}
		return false, c.s.SetTag(tag)
	case "sort":
		sortBy, err := models.ParseSortBy(arg)
		if err != nil {
			return false, err
		}
		return false, c.s.SetSort(sortBy)
	case "new":
		return false, c.create(ctx, arg)
	case "rm":
		note, err := c.s.Deleter().Delete(ctx, arg)
		if err != nil {
			return false, err
		}
		c.printf("deleted %s\n", note.ID)
		return false, nil
	case "refresh":
		return false, c.s.Refresh()
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", cmd)
	}
}

func (c *Console) create(ctx context.Context, arg string) error {
	parts := strings.SplitN(arg, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	draft := models.FormDraft{
		Title:   parts[0],
		Content: parts[1],
		Tag:     models.Tag(strings.TrimSpace(parts[2])),
	}
	if draft.Tag == "" {
		draft.Tag = models.NewFormDraft().Tag
	}
	note, err := c.s.Creator().Create(ctx, draft)
	if err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) && len(ve.Fields) > 0 {
			for _, field := range []string{"title", "content", "tag"} {
				if msg := ve.Field(field); msg != "" {
					c.printf("! %s\n", msg)
				}
			}
			return errors.New("note not created")
		}
		c.printf("! Failed to create note\n")
		return err
	}
	c.printf("created %s\n", note.ID)
	return nil
}

func moved(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no such page")
	}
	return nil
}

func (c *Console) render() error {
	v, err := c.s.View()
	if err != nil {
		return err
	}
	text := Format(v)
	if text == c.last {
		return nil
	}
	c.last = text
	c.printf("%s", text)
	return nil
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// Format renders a view as text.
func Format(v session.View) string {
	var b strings.Builder

	tag := "all"
	if v.Tag != "" {
		tag = string(v.Tag)
	}
	fmt.Fprintf(&b, "search %q  tag %s  sort %s\n", v.Search, tag, v.SortBy)
	if v.SearchInput != v.Search {
		fmt.Fprintf(&b, "typing %q\n", v.SearchInput)
	}

	switch {
	case v.Err != nil:
		fmt.Fprintf(&b, "Error: %s\n", v.Err)
		return b.String()
	case v.Loading:
		b.WriteString("Loading...\n")
		return b.String()
	case len(v.Notes) == 0 && !v.Fetching:
		b.WriteString("No notes found.\n")
	}

	for i, n := range v.Notes {
		fmt.Fprintf(&b, "%2d. [%s] %s  (%s)\n", i+1, n.Tag, n.Title, n.ID)
	}
	if v.Placeholder {
		b.WriteString("(updating)\n")
	}
	if v.ShowPagination {
		fmt.Fprintf(&b, "page %d/%d\n", v.Page, v.TotalPages)
	}
	return b.String()
}
