// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import "fmt"

// InitScript returns the GDB command file defining the bridge's custom
// commands. The commands drive the magic channel: a define body pokes the
// doorbell cell with an opcode/argument word, which the bridge intercepts
// before it ever reaches debuggee memory. The script only depends on ABI
// v1 and is safe to source into any GDB new enough for define/docs.
func InitScript() string {
	return fmt.Sprintf(`# rewind debugger integration (ABI v%d)

define checkpoint
  if $argc != 1
    echo usage: checkpoint <id>\n
  else
    set *(unsigned long long*)%#x = ((unsigned long long)$arg0 << 32) | %d
    echo checkpoint $arg0 set\n
  end
end
document checkpoint
Save the current replay position as checkpoint <id>.
Restart from it with: run <id>
end

define delete-checkpoint
  if $argc != 1
    echo usage: delete-checkpoint <id>\n
  else
    set *(unsigned long long*)%#x = ((unsigned long long)$arg0 << 32) | %d
  end
end
document delete-checkpoint
Discard checkpoint <id>.
end

define rewind-event
  printf "trace event: %%llu\n", *(unsigned long long*)%#x
end
document rewind-event
Print the current trace event count.
end

define diversion-begin
  set *(unsigned long long*)%#x = %d
end
document diversion-begin
Fork an ephemeral session the following commands mutate freely.
The replay itself is untouched.
end

define diversion-end
  set *(unsigned long long*)%#x = %d
end
document diversion-end
Discard the diversion and return to the replay position.
end
`,
		magicABIVersion,
		uint64(magicDoorbellAddr), magicOpCheckpointCreate,
		uint64(magicDoorbellAddr), magicOpCheckpointDelete,
		uint64(magicEventAddr),
		uint64(magicDoorbellAddr), magicOpDiversionBegin,
		uint64(magicDoorbellAddr), magicOpDiversionEnd,
	)
}
