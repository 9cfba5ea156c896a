// Barrier wire form (spec.md §6): {epoch:{prev,curr}, mutation} where
// mutation is one of four tagged variants. Control-plane and low-volume,
// so a textual encoding is the right trade-off -- unlike chunk/codec.go's
// hot-path binary format, this uses the teacher's own JSON library
// (json-iterator/go) rather than a bespoke layout.
package barrier

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wireMutation struct {
	Kind    string               `json:"kind"`
	Stop    []string             `json:"stop,omitempty"`
	Outputs map[string][]wireAct `json:"outputs,omitempty"`
}

type wireAct struct {
	ActorID     string `json:"actor_id"`
	HostAddress string `json:"host_address"`
}

type wireBarrier struct {
	Epoch    Epoch         `json:"epoch"`
	Mutation wireMutation  `json:"mutation"`
	Trace    string        `json:"trace,omitempty"`
}

func kindName(k MutationKind) string {
	switch k {
	case Nothing:
		return "nothing"
	case Stop:
		return "stop"
	case UpdateOutputs:
		return "update"
	case AddOutput:
		return "add"
	default:
		return "nothing"
	}
}

func kindFromName(s string) MutationKind {
	switch s {
	case "stop":
		return Stop
	case "update":
		return UpdateOutputs
	case "add":
		return AddOutput
	default:
		return Nothing
	}
}

// Encode serializes b into its wire form.
func Encode(b Barrier) ([]byte, error) {
	w := wireBarrier{Epoch: b.Epoch, Trace: b.Trace}
	w.Mutation.Kind = kindName(b.Mutation.Kind)
	if b.Mutation.StopSet != nil {
		ids := make([]string, 0, len(b.Mutation.StopSet))
		for id := range b.Mutation.StopSet {
			ids = append(ids, id)
		}
		w.Mutation.Stop = ids
	}
	if b.Mutation.Outputs != nil {
		out := make(map[string][]wireAct, len(b.Mutation.Outputs))
		for id, infos := range b.Mutation.Outputs {
			was := make([]wireAct, len(infos))
			for i, a := range infos {
				was[i] = wireAct{ActorID: a.ActorID, HostAddress: a.HostAddress}
			}
			out[id] = was
		}
		w.Mutation.Outputs = out
	}
	return json.Marshal(w)
}

// Decode deserializes a barrier previously produced by Encode.
func Decode(data []byte) (Barrier, error) {
	var w wireBarrier
	if err := json.Unmarshal(data, &w); err != nil {
		return Barrier{}, err
	}
	b := Barrier{Epoch: w.Epoch, Trace: w.Trace}
	b.Mutation.Kind = kindFromName(w.Mutation.Kind)
	if len(w.Mutation.Stop) > 0 {
		b.Mutation.StopSet = make(map[string]struct{}, len(w.Mutation.Stop))
		for _, id := range w.Mutation.Stop {
			b.Mutation.StopSet[id] = struct{}{}
		}
	}
	if len(w.Mutation.Outputs) > 0 {
		b.Mutation.Outputs = make(map[string][]ActorInfo, len(w.Mutation.Outputs))
		for id, was := range w.Mutation.Outputs {
			infos := make([]ActorInfo, len(was))
			for i, a := range was {
				infos[i] = ActorInfo{ActorID: a.ActorID, HostAddress: a.HostAddress}
			}
			b.Mutation.Outputs[id] = infos
		}
	}
	return b, nil
}
