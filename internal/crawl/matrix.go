package crawl

import "github.com/nao1215/footprint/internal/model"

// BuildMatrix returns one task per (site, mode) pair in catalog order, with
// the modes of each site in the fixed order ignore, accept, reject.
// A domain listed twice in the catalog is crawled once.
func BuildMatrix(sites []model.Site, modes []model.ConsentMode) []*model.CrawlTask {
	want := make(map[model.ConsentMode]bool, len(modes))
	for _, m := range modes {
		want[m] = true
	}
	var ordered []model.ConsentMode
	for _, m := range model.AllConsentModes() {
		if want[m] {
			ordered = append(ordered, m)
		}
	}

	seen := make(map[string]bool, len(sites))
	tasks := make([]*model.CrawlTask, 0, len(sites)*len(ordered))
	for _, site := range sites {
		if seen[site.Domain] {
			continue
		}
		seen[site.Domain] = true
		for _, m := range ordered {
			tasks = append(tasks, model.NewCrawlTask(site, m))
		}
	}
	return tasks
}

// withoutCompleted drops the tasks whose key is in done.
func withoutCompleted(tasks []*model.CrawlTask, done map[model.TaskKey]bool) []*model.CrawlTask {
	if len(done) == 0 {
		return tasks
	}
	out := tasks[:0:0]
	for _, t := range tasks {
		if !done[t.Key()] {
			out = append(out, t)
		}
	}
	return out
}
