// Command hecklerctl administers a running heckler server over its HTTP
// API. Credentials come from flags or from the HECKLER_URL, HECKLER_USER
// and HECKLER_PASSWORD environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/hecklerbot/heckler/pkg/api"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("hecklerctl", flag.ExitOnError)
	url := fs.String("url", envOr("HECKLER_URL", "http://127.0.0.1:8080"), "base URL of the heckler admin API")
	user := fs.String("user", os.Getenv("HECKLER_USER"), "HTTP Basic user")
	password := fs.String("password", os.Getenv("HECKLER_PASSWORD"), "HTTP Basic password")
	fs.Usage = usage
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 2 {
		usage()
		return 2
	}

	client := NewClient(*url, *user, *password)
	ctx := context.Background()

	var err error
	switch rest[0] + " " + rest[1] {
	case "clip add":
		err = clipAdd(ctx, client, rest[2:])
	case "clip list":
		err = clipList(ctx, client)
	case "clip edit":
		err = clipEdit(ctx, client, rest[2:])
	case "clip remove":
		err = clipRemove(ctx, client, rest[2:])
	case "phrase add":
		err = phraseAdd(ctx, client, rest[2:])
	case "phrase list":
		err = phraseList(ctx, client)
	case "phrase remove":
		err = phraseRemove(ctx, client, rest[2:])
	default:
		fmt.Fprintf(os.Stderr, "hecklerctl: unknown command %q\n", rest[0]+" "+rest[1])
		usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "hecklerctl: %v\n", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: hecklerctl [--url U] [--user U] [--password P] <command>

commands:
  clip add --file <path> [--description D] [--phrase P]...
  clip list
  clip edit <clip-id> [--description D] [--phrase P]...
  clip remove <clip-id>
  phrase add <clip-id> <text>
  phrase list
  phrase remove <phrase-id>`)
}

// phraseFlags collects repeated --phrase flags.
type phraseFlags []string

func (p *phraseFlags) String() string { return fmt.Sprint(*p) }

func (p *phraseFlags) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func clipAdd(ctx context.Context, client *Client, args []string) error {
	fs := flag.NewFlagSet("clip add", flag.ExitOnError)
	file := fs.String("file", "", "audio file to upload")
	description := fs.String("description", "", "human-readable clip label")
	var phrases phraseFlags
	fs.Var(&phrases, "phrase", "trigger phrase (repeatable)")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("clip add: --file is required")
	}

	clip, err := client.AddClip(ctx, *file, api.ClipUpload{
		Description: *description,
		Phrases:     phrases,
	})
	if err != nil {
		return err
	}
	printClip(clip)
	return nil
}

func clipList(ctx context.Context, client *Client) error {
	clips, err := client.ListClips(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLAYS\tLAST PLAYED\tDESCRIPTION")
	for _, clip := range clips.Clips {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			clip.ID, clip.PlayCount, clip.LastPlayedAt.Format("2006-01-02 15:04:05"), clip.Description)
	}
	return tw.Flush()
}

func clipEdit(ctx context.Context, client *Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("clip edit: clip ID is required")
	}
	id := args[0]

	fs := flag.NewFlagSet("clip edit", flag.ExitOnError)
	description := fs.String("description", "", "human-readable clip label")
	var phrases phraseFlags
	fs.Var(&phrases, "phrase", "trigger phrase (repeatable, replaces all existing phrases)")
	fs.Parse(args[1:])

	// Fields the caller did not flag keep their current values, so an
	// edit that only touches phrases cannot wipe the description.
	current, err := client.GetClip(ctx, id)
	if err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	upload := api.ClipUpload{Description: current.Description}
	for _, p := range current.Phrases {
		upload.Phrases = append(upload.Phrases, p.Text)
	}
	if set["description"] {
		upload.Description = *description
	}
	if set["phrase"] {
		upload.Phrases = phrases
	}

	updated, err := client.EditClip(ctx, id, upload)
	if err != nil {
		return err
	}
	fmt.Println("before:")
	printClip(updated.OldClip)
	fmt.Println("after:")
	printClip(updated.NewClip)
	return nil
}

func clipRemove(ctx context.Context, client *Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("clip remove: clip ID is required")
	}
	clip, err := client.RemoveClip(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("removed clip %s (%s)\n", clip.ID, clip.Description)
	return nil
}

func phraseAdd(ctx context.Context, client *Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("phrase add: clip ID and phrase text are required")
	}
	phrase, err := client.AddPhrase(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("added phrase %s %q to clip %s\n", phrase.ID, phrase.Text, phrase.ClipID)
	return nil
}

func phraseList(ctx context.Context, client *Client) error {
	phrases, err := client.ListPhrases(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCLIP\tTEXT")
	for _, phrase := range phrases.Phrases {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", phrase.ID, phrase.ClipID, phrase.Text)
	}
	return tw.Flush()
}

func phraseRemove(ctx context.Context, client *Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("phrase remove: phrase ID is required")
	}
	phrase, err := client.RemovePhrase(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("removed phrase %s %q\n", phrase.ID, phrase.Text)
	return nil
}

func printClip(clip api.Clip) {
	fmt.Printf("  id:          %s\n", clip.ID)
	fmt.Printf("  description: %s\n", clip.Description)
	fmt.Printf("  audio:       %s\n", clip.AudioPath)
	fmt.Printf("  plays:       %d\n", clip.PlayCount)
	if len(clip.Phrases) > 0 {
		fmt.Print("  phrases:    ")
		for _, phrase := range clip.Phrases {
			fmt.Printf(" %q", phrase.Text)
		}
		fmt.Println()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
