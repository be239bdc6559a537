package stats

// BuildHierarchy reconstructs the process forest from raw spawn records and
// thread ownership. Parent/child multi-edges are deduplicated; a process
// observed as its own parent through an exec transition keeps itself in the
// child set and is therefore not classified as bottom. Depth is assigned by a
// BFS from all roots (processes without parents) simultaneously.
func (d *DynamicStats) BuildHierarchy(spawns map[int][]SpawnRecord, threads map[int]Thread) {
	for pid, records := range spawns {
		for _, record := range records {
			parent := d.process(record.ParentPID)
			child := d.process(pid)
			parent.Children = appendUnique(parent.Children, pid)
			child.Parents = appendUnique(child.Parents, record.ParentPID)
			child.Duration = record.Duration
		}
	}

	d.Threads = make(map[int]Thread, len(threads))
	for tid, thread := range threads {
		d.Threads[tid] = thread
		proc := d.process(thread.PID)
		proc.Threads = appendUnique(proc.Threads, tid)
	}

	for _, proc := range d.Hierarchy {
		proc.Bottom = len(proc.Children) == 0
	}

	d.assignDepth()
}

// process is the single construction point of hierarchy entries.
func (d *DynamicStats) process(pid int) *Process {
	proc, ok := d.Hierarchy[pid]
	if !ok {
		proc = &Process{
			Parents:  []int{},
			Children: []int{},
			Threads:  []int{},
		}
		d.Hierarchy[pid] = proc
	}
	return proc
}

func (d *DynamicStats) assignDepth() {
	frontier := make([]int, 0)
	visited := make(map[int]struct{})
	for pid, proc := range d.Hierarchy {
		if len(proc.Parents) == 0 {
			proc.Depth = 0
			frontier = append(frontier, pid)
			visited[pid] = struct{}{}
		}
	}

	depth := 0
	for len(frontier) > 0 {
		depth++
		next := make([]int, 0)
		for _, pid := range frontier {
			for _, child := range d.Hierarchy[pid].Children {
				if _, done := visited[child]; done {
					continue
				}
				d.Hierarchy[child].Depth = depth
				visited[child] = struct{}{}
				next = append(next, child)
			}
		}
		frontier = next
	}
}

func (d *DynamicStats) bottomProcesses() map[int]struct{} {
	bottom := make(map[int]struct{})
	for pid, proc := range d.Hierarchy {
		if proc.Bottom {
			bottom[pid] = struct{}{}
		}
	}
	return bottom
}

func appendUnique(ids []int, id int) []int {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
