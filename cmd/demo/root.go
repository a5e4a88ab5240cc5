package demo

import (
	"bytes"
	"fmt"
	"math/rand/v2"

	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/engine"
	"github.com/ValentinKolb/dSync/lib/session"
	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// DemoCmd runs a cluster of in-process replicas and verifies convergence
	DemoCmd = &cobra.Command{
		Use:     "demo",
		Short:   "Run concurrently editing in-process replicas and verify they converge",
		RunE:    run,
		PreRunE: processConfig,
	}

	demoReplicas = 3
	demoOps      = 50
	demoSeed     = uint64(1)
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// add flags
	key := "replicas"
	DemoCmd.Flags().Int(key, 3, util.WrapString("Number of in-process replicas"))
	key = "ops"
	DemoCmd.Flags().Int(key, 50, util.WrapString("Number of operations each replica applies"))
	key = "seed"
	DemoCmd.Flags().Uint64(key, 1, util.WrapString("Seed for the edit script generator"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	demoReplicas = viper.GetInt("replicas")
	demoOps = viper.GetInt("ops")
	demoSeed = viper.GetUint64("seed")

	if demoReplicas < 2 {
		return fmt.Errorf("demo needs at least 2 replicas, got %d", demoReplicas)
	}
	return nil
}

// replica bundles one engine with its session and outbound updates.
type replica struct {
	name    string
	engine  engine.ICollabEngine
	session *session.Session
	sent    []store.Update
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Printf("dSync demo: %d replicas, %d ops each, seed %d\n\n", demoReplicas, demoOps, demoSeed)

	// spin up the replicas, one user each
	replicas := make([]*replica, demoReplicas)
	for i := range replicas {
		e := engine.NewDefault()
		defer e.Close()

		user := fmt.Sprintf("user-%d", i)
		sess, err := e.StartSession(user, user, session.Editor())
		if err != nil {
			return err
		}
		replicas[i] = &replica{name: user, engine: e, session: sess}
	}

	// every replica edits its local document without seeing the others
	rng := rand.New(rand.NewPCG(demoSeed, demoSeed))
	for _, r := range replicas {
		for i := 0; i < demoOps; i++ {
			update, err := r.engine.ApplyOperation(r.session.ID, randomOp(rng, r.name, i))
			if err != nil {
				return fmt.Errorf("%s: apply failed: %v", r.name, err)
			}
			r.sent = append(r.sent, update)
		}
		if err := r.engine.UpdateCursor(r.session.ID, session.Position{X: rng.Float64() * 100, Y: rng.Float64() * 100}, session.Selection{}, "pen"); err != nil {
			return err
		}
	}
	fmt.Printf("applied %d isolated operations per replica\n", demoOps)

	// exchange the update streams, FIFO per origin, duplicated on purpose
	for _, from := range replicas {
		for _, to := range replicas {
			if from == to {
				continue
			}
			for _, u := range from.sent {
				if err := to.engine.ApplyRemoteUpdate(u); err != nil {
					return fmt.Errorf("relay %s -> %s failed: %v", from.name, to.name, err)
				}
				// re-deliver every update once, idempotence must absorb it
				if err := to.engine.ApplyRemoteUpdate(u); err != nil {
					return err
				}
			}
		}
	}
	fmt.Println("exchanged all update streams (each update delivered twice)")

	// verify byte-identical exports
	reference, err := replicas[0].engine.ExportState()
	if err != nil {
		return err
	}
	for _, r := range replicas[1:] {
		snap, err := r.engine.ExportState()
		if err != nil {
			return err
		}
		if !bytes.Equal(reference.TextStore, snap.TextStore) ||
			!bytes.Equal(reference.ObjectStore, snap.ObjectStore) ||
			!bytes.Equal(reference.TableStore, snap.TableStore) {
			return fmt.Errorf("replica %s diverged from %s", r.name, replicas[0].name)
		}
	}
	fmt.Printf("all %d replicas converged to byte-identical state\n\n", demoReplicas)

	// serialize the final snapshot with the configured serializer
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	blob, err := s.Serialize(reference)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot (%s): %d bytes\n", viper.GetString("serializer"), len(blob))
	fmt.Printf("vector clock: %v\n", replicas[0].engine.Clock())
	return nil
}

// randomOp generates one edit. The mix is weighted towards text since that
// is where replicas actually interleave.
func randomOp(rng *rand.Rand, user string, i int) store.Operation {
	switch rng.IntN(6) {
	case 0, 1, 2:
		return &store.TextInsert{
			Position: rng.IntN(i*4 + 1),
			Text:     fmt.Sprintf("[%s:%d]", user, i),
		}
	case 3:
		return &store.ObjectCreate{
			ObjectID:   fmt.Sprintf("%s-obj-%d", user, i),
			ObjectType: "rect",
			X:          rng.Float64() * 100,
			Y:          rng.Float64() * 100,
		}
	case 4:
		return &store.ObjectMove{
			ObjectID: fmt.Sprintf("%s-obj-%d", user, rng.IntN(i+1)),
			X:        rng.Float64() * 100,
			Y:        rng.Float64() * 100,
		}
	default:
		return &store.TableInsert{
			Table: "metrics",
			Row:   fmt.Sprintf("r%d", rng.IntN(10)),
			Col:   fmt.Sprintf("c%d", rng.IntN(5)),
			Value: []byte(fmt.Sprintf("%d", rng.IntN(1000))),
		}
	}
}
