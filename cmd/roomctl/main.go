// roomctl prints the live state of a roomhub server as tables
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"roomhub/pkg/types"
)

var errUsage = errors.New("usage: roomctl [-addr URL] rooms | room <path> | entities")

func main() {
	if err := run(os.Args[1:], os.Stdout, http.DefaultClient); err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Sprint(err))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, client *http.Client) error {
	flags := flag.NewFlagSet("roomctl", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	addr := flags.String("addr", "http://127.0.0.1:8080", "roomhub base URL")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}

	c := &apiClient{base: *addr, http: client}
	rest := flags.Args()
	if len(rest) == 0 {
		return errUsage
	}

	switch rest[0] {
	case "rooms":
		return c.printRooms(out)
	case "room":
		if len(rest) != 2 {
			return errUsage
		}
		return c.printRoom(out, rest[1])
	case "entities":
		return c.printEntities(out)
	default:
		return errUsage
	}
}

type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) get(path string, target any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s: %d %s", path, resp.StatusCode, apiErr.Message)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func (c *apiClient) printRooms(out io.Writer) error {
	var paths []string
	if err := c.get("/api/rooms", &paths); err != nil {
		return err
	}

	table := newTable(out, "Room", "Sessions")
	for _, path := range paths {
		var summary types.RoomSummary
		if err := c.get("/api/rooms/"+url.PathEscape(path), &summary); err != nil {
			// Room emptied between the two calls
			continue
		}
		table.Append([]string{path, strconv.Itoa(summary.ActiveSessions)})
	}
	table.Render()

	fmt.Fprintln(out, color.Green.Sprintf("%d active room(s)", len(paths)))
	return nil
}

func (c *apiClient) printRoom(out io.Writer, path string) error {
	var summary types.RoomSummary
	if err := c.get("/api/rooms/"+url.PathEscape(path), &summary); err != nil {
		return err
	}

	info := summary.RoomInfo
	focal, focalRange := "-", "-"
	if info.FocalPoint != nil {
		focal = fmt.Sprintf("(%g, %g)", info.FocalPoint[0], info.FocalPoint[1])
	}
	if info.FocalRange != nil {
		focalRange = fmt.Sprintf("(%g, %g, %g, %g)", info.FocalRange[0], info.FocalRange[1], info.FocalRange[2], info.FocalRange[3])
	}

	table := newTable(out, "Field", "Value")
	table.AppendBulk([][]string{
		{"path", summary.Path},
		{"active_sessions", strconv.Itoa(summary.ActiveSessions)},
		{"size", fmt.Sprintf("%g x %g", info.Width, info.Height)},
		{"focal_point", focal},
		{"focal_range", focalRange},
	})
	table.Render()
	return nil
}

func (c *apiClient) printEntities(out io.Writer) error {
	var entities []types.Entity
	if err := c.get("/api/entities", &entities); err != nil {
		return err
	}

	rows := lo.Map(entities, func(e types.Entity, _ int) []string {
		active := color.Gray.Sprint("no")
		if e.Status.IsActive {
			active = color.Green.Sprint("yes")
		}
		return []string{
			strconv.FormatInt(e.ID, 10),
			e.Name,
			fmt.Sprintf("%g, %g, %g", e.X, e.Y, e.Z),
			e.Status.Description,
			strconv.FormatInt(e.Status.Level, 10),
			active,
			lo.FromPtrOr(e.ImageID, "-"),
		}
	})

	table := newTable(out, "ID", "Name", "Position", "Status", "Level", "Active", "Image")
	table.AppendBulk(rows)
	table.Render()

	fmt.Fprintln(out, color.Green.Sprintf("%d entit(ies) as of %s", len(entities), time.Now().Format(time.Kitchen)))
	return nil
}
