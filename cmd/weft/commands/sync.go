// cmd/weft/commands/sync.go
package commands

import (
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"weft/pkg/document"
	"weft/pkg/sync"
)

// The core protocol is transport-free; this command supplies the
// point-to-point ordered channel it assumes, using a websocket, and runs
// rounds to quiescence.

var (
	syncListen string
	syncURL    string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize a document with a peer over a websocket",
}

var syncServeCmd = &cobra.Command{
	Use:   "serve <doc>",
	Short: "Serve a document to incoming peers, once each",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger()
		defer log.Sync()
		doc, err := document.LoadFile(args[0])
		if err != nil {
			return err
		}
		upgrader := websocket.Upgrader{}
		done := make(chan error, 1)
		server := &http.Server{Addr: syncListen}
		http.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				log.Warn("upgrade failed", zap.Error(err))
				return
			}
			defer conn.Close()
			err = runPeer(doc, conn, false, log)
			if err == nil {
				err = doc.SaveFile(args[0])
			}
			done <- err
		})
		log.Info("listening", zap.String("addr", syncListen))
		go func() {
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				done <- err
			}
		}()
		err = <-done
		server.Close()
		return err
	},
}

var syncJoinCmd = &cobra.Command{
	Use:   "join <doc>",
	Short: "Connect to a serving peer and sync to quiescence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger()
		defer log.Sync()
		doc, err := document.LoadFile(args[0])
		if err != nil {
			return err
		}
		u, err := url.Parse(syncURL)
		if err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := runPeer(doc, conn, true, log); err != nil {
			return err
		}
		return doc.SaveFile(args[0])
	},
}

// runPeer alternates generate/receive over the socket until both sides
// report quiescence. An empty frame signals "nothing to send".
func runPeer(doc *document.Document, conn *websocket.Conn, initiate bool, log *zap.Logger) error {
	engine := sync.NewEngine(doc, log)
	st := sync.NewState()
	sendTurn := initiate
	quietSends, quietRecvs := false, false
	for {
		if sendTurn {
			msg, err := engine.Generate(st)
			if err != nil {
				return err
			}
			var payload []byte
			if msg != nil {
				if payload, err = msg.Encode(); err != nil {
					return err
				}
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return err
			}
			quietSends = msg == nil
		} else {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			quietRecvs = len(payload) == 0
			if !quietRecvs {
				msg, err := sync.DecodeMessage(payload)
				if err != nil {
					return err
				}
				if err := engine.Receive(st, msg); err != nil {
					return err
				}
			}
		}
		if quietSends && quietRecvs {
			log.Info("in sync", zap.Int("changes", len(doc.GetChanges(nil))))
			return nil
		}
		sendTurn = !sendTurn
	}
}

func init() {
	syncServeCmd.Flags().StringVar(&syncListen, "listen", "127.0.0.1:7654", "listen address")
	syncJoinCmd.Flags().StringVar(&syncURL, "url", "ws://127.0.0.1:7654/sync", "peer websocket URL")
	syncCmd.AddCommand(syncServeCmd, syncJoinCmd)
}
