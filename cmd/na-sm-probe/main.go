/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Command na-sm-probe exercises the SM plugin's ring and arena geometry
// in isolation, walking the raw segment/ring primitives before any RPC
// machinery sits on top of them.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/wangrunji0408/mercury"
	"github.com/wangrunji0408/mercury/plugins/sm"
)

func main() {
	name := fmt.Sprintf("na-sm-probe-%d", os.Getpid())

	fmt.Printf("=== Ring Capacity ===\n")
	ring, err := sm.CreateRing(name + "-ring")
	if err != nil {
		log.Fatalf("create ring: %v", err)
	}
	defer ring.Close()
	fmt.Printf("Ring region size: %d bytes\n", sm.RegionSize())
	fmt.Printf("Ring capacity: %d headers\n", sm.RingCapacity)

	pushed := 0
	for i := 0; i < sm.RingCapacity+4; i++ {
		err := ring.TryPush(sm.Header{Type: sm.HeaderSendUnexpected, SlotIdx: uint8(i % 64), Size: 64, Tag: uint32(i)})
		if err != nil {
			fmt.Printf("push %d: FULL after %d entries (%v)\n", i, pushed, err)
			break
		}
		pushed++
	}
	fmt.Printf("Pushed %d headers before observing ErrRingFull.\n", pushed)

	popped := 0
	for {
		if _, err := ring.TryPop(); err != nil {
			break
		}
		popped++
	}
	fmt.Printf("Popped %d headers back out; ring drained.\n", popped)

	fmt.Printf("\n=== Arena Capacity ===\n")
	arena, err := sm.CreateArena(name + "-arena")
	if err != nil {
		log.Fatalf("create arena: %v", err)
	}
	defer arena.Close()
	fmt.Printf("Arena region size: %d bytes (%d slots x %d bytes)\n", sm.ArenaRegionSize(), sm.NumBufs, sm.CopySize)

	var slots []int
	for i := 0; i < sm.NumBufs+2; i++ {
		payload := make([]byte, 100)
		slot, err := arena.Reserve(payload)
		if err != nil {
			fmt.Printf("reserve %d: FULL after %d slots (%v)\n", i, len(slots), err)
			break
		}
		slots = append(slots, slot)
	}
	fmt.Printf("Reserved %d of %d slots before exhaustion.\n", len(slots), sm.NumBufs)

	for _, s := range slots {
		arena.Release(s)
	}
	fmt.Printf("All free after release: %v\n", arena.AllFree())

	fmt.Printf("\n=== Oversized Payload ===\n")
	_, err = arena.Reserve(make([]byte, sm.CopySize+1))
	fmt.Printf("Reserve(CopySize+1) error: %v\n", err)
	fmt.Printf("Equivalent NA kind %s maps to grpc code %s\n", mercury.Fault, mercury.Fault.GRPCCode())
}
