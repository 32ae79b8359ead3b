package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// StepPrinterFunc returns a handler writing streamed tokens to w as they
// arrive, followed by the reasoning and sources once the reply is final.
func StepPrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	isFirst := true

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch p_ := e.(type) {
		case *EventPartialCompletion:
			if isFirst && name != "" {
				isFirst = false
				if _, err = fmt.Fprintf(w, "\n%s: \n", name); err != nil {
					return err
				}
			}
			if _, err = fmt.Fprintf(w, "%s", p_.Delta); err != nil {
				return err
			}

		case *EventFinal:
			if !strings.HasSuffix(p_.Text, "\n") {
				if _, err = fmt.Fprintf(w, "\n"); err != nil {
					return err
				}
			}
			if p_.Thinking != "" {
				if _, err = fmt.Fprintf(w, "\n--- Thinking ---\n%s\n", p_.Thinking); err != nil {
					return err
				}
			}
			for i, s := range p_.Sources {
				if _, err = fmt.Fprintf(w, "[%d] %s <%s>\n", i+1, s.Title, s.URL); err != nil {
					return err
				}
			}

		case *EventError:
			if _, err = fmt.Fprintf(w, "\n[error] %s\n", p_.ErrorString); err != nil {
				return err
			}

		case *EventInterrupt:
			if _, err = fmt.Fprintf(w, "\n[interrupted]\n"); err != nil {
				return err
			}

		case *EventStart:
		}

		return nil
	}
}
