package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nkoenig/chord-librarian/internal/chord"
	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/util"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <chord>",
	Short: "Find chord voicings in the destination store",
	Long: `Find chord voicings in the main library by name.

Matching is a case-insensitive prefix match on the chord name, with one
refinement: a bare root query ("C") does not pull in that root's minor
chords ("Cm", "Cm7") unless the query itself asks for minor.

Examples:
  clm lookup C      all C-rooted chords except the minors
  clm lookup Cm     Cm, Cm7 and the rest of the C minor family
  clm lookup F#m7   exactly the F#m7 voicings`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	lookupCmd.Flags().IntP("limit", "l", 0, "Limit number of voicings shown (0 = no limit)")
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	query := strings.TrimSpace(args[0])
	limit, _ := cmd.Flags().GetInt("limit")

	client, err := newInstantClient()
	if err != nil {
		return err
	}

	// The store can prefix-match on name; narrowing to the root note keeps
	// the scan small, the precise matching happens here
	prefix := chord.ExtractRootNote(query)
	if prefix == "" {
		prefix = query
	}

	rows, err := client.QueryNamePrefix(ctx, instant.MainPartition(), prefix)
	if err != nil {
		if instant.IsTimeout(err) {
			util.ErrorLog("Data incomplete: the lookup query timed out; the library may hold matches this result cannot show")
		}
		return fmt.Errorf("lookup failed: %w", err)
	}

	matches := rows[:0:0]
	for _, v := range rows {
		if chord.MatchesQuery(v.Name, query) {
			matches = append(matches, v)
		}
	}

	if len(matches) == 0 {
		util.InfoLog("No chords match %q", query)
		util.InfoLog("The library may be empty; populate it with: clm migrate")
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Name != matches[j].Name {
			return matches[i].Name < matches[j].Name
		}
		return matches[i].Position < matches[j].Position
	})

	shown := 0
	lastName := ""
	for _, v := range matches {
		if limit > 0 && shown >= limit {
			util.InfoLog("")
			util.InfoLog("... and %d more (raise --limit to see them)", len(matches)-shown)
			break
		}
		if v.Name != lastName {
			fmt.Println()
			util.SuccessLog("%s", v.Name)
			lastName = v.Name
		}
		util.InfoLog("  #%d  frets %s  base %d", v.Position, formatFrets(v.Frets), v.BaseFret)
		shown++
	}

	util.InfoLog("")
	util.InfoLog("%d voicings across %d chords", len(matches), countNames(matches))
	return nil
}

// formatFrets renders a fret sequence the way chord charts do: one symbol
// per string, "x" for muted
func formatFrets(frets []int) string {
	var b strings.Builder
	for i, f := range frets {
		if i > 0 {
			b.WriteByte(' ')
		}
		if f < 0 {
			b.WriteByte('x')
		} else {
			fmt.Fprintf(&b, "%d", f)
		}
	}
	return b.String()
}

func countNames(voicings []chord.Voicing) int {
	names := make(map[string]struct{}, len(voicings))
	for _, v := range voicings {
		names[v.Name] = struct{}{}
	}
	return len(names)
}
