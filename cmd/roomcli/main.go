// Package main provides the room CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/sonicbox/internal/api/connect"
)

var (
	app    = kingpin.New("sonicbox-roomcli", "sonicbox room client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set CONTROL_TOKEN env)").Envar("CONTROL_TOKEN").String()
	room   = app.Flag("room", "Room ID").Short('r').Envar("SONICBOX_ROOM").Default("default").String()

	// join command
	joinCmd        = app.Command("join", "Join the room and connect its audio output")
	joinName       = joinCmd.Arg("name", "Display name").Required().String()
	joinExternalID = joinCmd.Arg("external-id", "External user ID (optional)").String()

	// leave command
	leaveCmd    = app.Command("leave", "Leave the room")
	leaveMember = leaveCmd.Arg("member-id", "Member ID (UUID)").Required().String()

	// play command
	playCmd    = app.Command("play", "Queue a song by search query or Spotify link; without a query, start playback")
	playMember = playCmd.Flag("member", "Member ID of the requester").String()
	playQuery  = playCmd.Arg("query", "Search query or Spotify track link").Strings()

	// album command
	albumCmd   = app.Command("album", "Queue every song of an album")
	albumQuery = albumCmd.Arg("query", "Album search query").Required().Strings()

	// disco command
	discoCmd    = app.Command("disco", "Queue the discography of an artist")
	discoArtist = discoCmd.Arg("artist", "Artist name").Required().Strings()

	queueCmd   = app.Command("queue", "List the queue")
	skipCmd    = app.Command("skip", "Skip the current song")
	stopCmd    = app.Command("stop", "Stop playback and keep the current song queued")
	clearCmd   = app.Command("clear", "Clear the queue")
	shuffleCmd = app.Command("shuffle", "Shuffle the queue")

	// autoplay command
	autoplayCmd  = app.Command("autoplay", "Set the autoplay mode")
	autoplayMode = autoplayCmd.Arg("mode", "Autoplay mode").Required().Enum("none", "random", "similar")

	statusCmd = app.Command("status", "Show the room status").Alias("np")

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to room notifications")
	subscribeAll = subscribeCmd.Flag("all", "Receive the notifications of every room").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: control token is required (use --token or CONTROL_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewRoomServiceClient(
		http.DefaultClient,
		*server,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(*token)),
	)

	ctx := context.Background()
	roomReq := &apiconnect.RoomRequest{Room: *room}

	switch command {
	case joinCmd.FullCommand():
		resp, err := client.Join(ctx, &apiconnect.JoinRequest{Room: *room, DisplayName: *joinName, ExternalUserID: *joinExternalID})
		exitOnError(err)
		fmt.Printf("Joined %s! Your member ID: %s\n", *room, resp.MemberID)

	case leaveCmd.FullCommand():
		resp, err := client.Leave(ctx, &apiconnect.LeaveRequest{Room: *room, MemberID: *leaveMember})
		exitOnError(err)
		fmt.Println(resp.Message)

	case playCmd.FullCommand():
		resp, err := client.Play(ctx, &apiconnect.PlayRequest{Room: *room, MemberID: *playMember, Query: strings.Join(*playQuery, " ")})
		exitOnError(err)
		printPlay(resp)

	case albumCmd.FullCommand():
		resp, err := client.Album(ctx, &apiconnect.AlbumRequest{Room: *room, Query: strings.Join(*albumQuery, " ")})
		exitOnError(err)
		printPlay(resp)

	case discoCmd.FullCommand():
		resp, err := client.Disco(ctx, &apiconnect.DiscoRequest{Room: *room, Artist: strings.Join(*discoArtist, " ")})
		exitOnError(err)
		printPlay(resp)

	case queueCmd.FullCommand():
		resp, err := client.Queue(ctx, roomReq)
		exitOnError(err)
		printTracks(resp.Tracks)
		fmt.Printf("Total: %s\n", formatSeconds(resp.TotalDurationSeconds))

	case skipCmd.FullCommand():
		resp, err := client.Skip(ctx, roomReq)
		exitOnError(err)
		fmt.Println(resp.Message)

	case stopCmd.FullCommand():
		resp, err := client.Stop(ctx, roomReq)
		exitOnError(err)
		fmt.Println(resp.Message)

	case clearCmd.FullCommand():
		resp, err := client.Clear(ctx, roomReq)
		exitOnError(err)
		fmt.Printf("Removed %d songs\n", resp.Removed)

	case shuffleCmd.FullCommand():
		resp, err := client.Shuffle(ctx, roomReq)
		exitOnError(err)
		fmt.Println(resp.Message)

	case autoplayCmd.FullCommand():
		resp, err := client.SetAutoplay(ctx, &apiconnect.SetAutoplayRequest{Room: *room, Mode: *autoplayMode})
		exitOnError(err)
		fmt.Printf("Autoplay: %s\n", resp.Mode)
		if resp.Started {
			fmt.Println("Playback started")
		}

	case statusCmd.FullCommand():
		resp, err := client.GetStatus(ctx, roomReq)
		exitOnError(err)
		printStatus(resp)

	case subscribeCmd.FullCommand():
		target := *room
		if *subscribeAll {
			target = ""
		}
		subscribe(ctx, client, target)
	}
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) && apiconnect.ResultCode(err) != "" {
		fmt.Printf("Error [%s]: %s\n", apiconnect.ResultCode(err), cerr.Message())
	} else {
		fmt.Printf("Error: %v\n", err)
	}
	os.Exit(1)
}

func subscribe(ctx context.Context, client *apiconnect.RoomServiceClient, target string) {
	stream, err := client.Subscribe(ctx, &apiconnect.SubscribeRequest{Room: target})
	exitOnError(err)

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		os.Exit(0)
	}()

	for stream.Receive() {
		printNotification(stream.Msg())
	}

	if err := stream.Err(); err != nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printPlay(resp *apiconnect.PlayResponse) {
	fmt.Println(resp.Message)
	if len(resp.Added) == 1 {
		fmt.Printf("Queued: %s\n", formatTrack(&resp.Added[0]))
	} else if len(resp.Added) > 1 {
		fmt.Printf("Queued %d songs\n", len(resp.Added))
	}
	if resp.Started && resp.Current != nil {
		fmt.Printf("Now playing: %s\n", formatTrack(resp.Current))
	}
}

func printStatus(s *apiconnect.StatusResponse) {
	fmt.Printf("\n=== ROOM %s ===\n", s.Room)
	fmt.Printf("State: %s\n", s.State)
	fmt.Printf("Autoplay: %s\n", s.Autoplay)
	fmt.Printf("Connected: %v\n", s.Connected)

	if s.Current != nil {
		fmt.Printf("\nNow playing: %s\n", formatTrack(s.Current))
		fmt.Printf("  Album: %s\n", s.Current.Album)
		fmt.Printf("  Cover: %s\n", s.CoverPath)
	} else {
		fmt.Println("\nNothing playing")
	}

	fmt.Printf("\nQueue (%d, %s):\n", len(s.Queue), formatSeconds(s.TotalDurationSeconds))
	printTracks(s.Queue)

	fmt.Printf("\nMembers (%d):\n", len(s.Members))
	for _, m := range s.Members {
		fmt.Printf("  %s: %s (joined: %s)\n", m.ID, m.DisplayName, m.JoinedAt)
	}
	fmt.Println()
}

func printTracks(tracks []apiconnect.Track) {
	for i := range tracks {
		fmt.Printf("  %2d. %s\n", i+1, formatTrack(&tracks[i]))
	}
}

func printNotification(n *apiconnect.Notification) {
	fmt.Printf("\n[%s #%d] %s %s\n", n.Room, n.SequenceNo, n.Timestamp, strings.ToUpper(n.Kind))
	if n.Track != nil {
		fmt.Printf("  Track: %s\n", formatTrack(n.Track))
	}
	if n.CoverPath != "" {
		fmt.Printf("  Cover: %s\n", n.CoverPath)
	}
	if n.Message != "" {
		fmt.Printf("  %s\n", n.Message)
	}
}

func formatTrack(t *apiconnect.Track) string {
	return fmt.Sprintf("%s - %s [%s]", t.Artist, t.Title, formatSeconds(t.DurationSeconds))
}

func formatSeconds(secs int64) string {
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
