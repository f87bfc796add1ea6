package app

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/germanamz/chatstream/pkg/attachment"
)

// Command is a parsed slash command.
type Command struct {
	Name string
	Arg  string
}

// ParseCommand splits "/name arg..." into a Command. ok is false for
// anything that is not a slash command.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || strings.HasPrefix(text, "//") {
		return Command{}, false
	}

	name, arg, _ := strings.Cut(text[1:], " ")
	if name == "" {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(name), Arg: strings.TrimSpace(arg)}, true
}

// AttachmentFromPath builds a pending attachment for a local path or an
// s3:// URI. Local files are stat'ed for their size; remote objects are
// sized when read.
func AttachmentFromPath(p string) (attachment.Attachment, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return attachment.Attachment{}, errors.New("usage: /attach <path or s3://bucket/key>")
	}

	if strings.HasPrefix(p, "s3://") {
		_, key, err := attachment.ParseS3URI(p)
		if err != nil {
			return attachment.Attachment{}, err
		}
		name := path.Base(key)
		return attachment.Attachment{
			ID:       attachment.NewID(),
			Name:     name,
			MimeType: attachment.NormalizeMIME("", name),
			URI:      p,
		}, nil
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return attachment.Attachment{}, fmt.Errorf("attach %s: %w", p, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return attachment.Attachment{}, fmt.Errorf("attach %s: %w", p, err)
	}
	if info.IsDir() {
		return attachment.Attachment{}, fmt.Errorf("attach %s: is a directory", p)
	}

	name := filepath.Base(abs)
	return attachment.Attachment{
		ID:       attachment.NewID(),
		Name:     name,
		Size:     info.Size(),
		MimeType: attachment.NormalizeMIME("", name),
		URI:      abs,
	}, nil
}

// Detach removes a pending attachment by id, or by its 1-based position.
func Detach(list *attachment.List, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errors.New("usage: /detach <id or number>")
	}

	if list.Remove(ref) {
		return nil
	}

	if n, err := strconv.Atoi(ref); err == nil {
		items := list.Items()
		if n >= 1 && n <= len(items) {
			list.Remove(items[n-1].ID)
			return nil
		}
	}

	return fmt.Errorf("no pending attachment %q", ref)
}

// Suggestion returns the 1-based suggestion ref names.
func Suggestion(items []string, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("usage: /suggest <number>")
	}
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(items) {
		return "", fmt.Errorf("no suggestion %q", ref)
	}
	return items[n-1], nil
}

func helpText() string {
	return "Commands:\n" +
		"  /attach <path>   Attach a file (local path or s3://bucket/key)\n" +
		"  /detach <n|id>   Remove a pending attachment\n" +
		"  /regenerate      Ask for a new answer to the last message\n" +
		"  /retry           Resend the last message after an error\n" +
		"  /clear           Dismiss the current error\n" +
		"  /copy            Copy the last answer to the clipboard\n" +
		"  /suggest <n>     Send a suggested prompt\n" +
		"  /new             Start a new conversation\n" +
		"  /help            Show this help message\n" +
		"  /quit            Exit the chat\n\n" +
		"Shortcuts:\n" +
		"  Enter            Submit message\n" +
		"  Alt+Enter        New line\n" +
		"  Escape           Stop the response\n" +
		"  PgUp/PgDown      Scroll\n" +
		"  Ctrl+C           Exit"
}
