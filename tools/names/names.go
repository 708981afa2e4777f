package names

import (
	"math/rand"
	"sync"
	"time"
)

// 匿名读者的显示名：形容词 + 动物，配色从固定调色板取
// 纯函数，无共享状态（rand 自带锁之外）

var adjectives = []string{
	"Quiet", "Curious", "Swift", "Gentle", "Bold", "Clever", "Drowsy",
	"Eager", "Mellow", "Nimble", "Patient", "Rustic", "Silent", "Witty",
	"Amber", "Crimson", "Dusty", "Golden", "Ivory", "Silver",
}

var animals = []string{
	"Owl", "Fox", "Heron", "Lynx", "Otter", "Raven", "Sparrow",
	"Badger", "Crane", "Deer", "Finch", "Hare", "Mole", "Wren",
	"Tortoise", "Moth", "Seal", "Stoat", "Swift", "Vole",
}

// 调色板与前端高亮色一致
var palette = []string{
	"#E57373", "#F06292", "#BA68C8", "#9575CD", "#7986CB",
	"#64B5F6", "#4DD0E1", "#4DB6AC", "#81C784", "#AED581",
	"#FFD54F", "#FFB74D", "#A1887F", "#90A4AE",
}

var (
	mu sync.Mutex
	// math/rand 足够：显示名不承担任何安全语义
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Generate returns a random display name and color for a new anonymous reader.
func Generate() (name string, color string) {
	mu.Lock()
	defer mu.Unlock()
	name = adjectives[rng.Intn(len(adjectives))] + " " + animals[rng.Intn(len(animals))]
	color = palette[rng.Intn(len(palette))]
	return name, color
}

// Palette exposes the highlight color palette for validation on create.
func Palette() []string {
	out := make([]string, len(palette))
	copy(out, palette)
	return out
}

// ValidColor reports whether c is one of the palette colors or a #rrggbb value.
func ValidColor(c string) bool {
	if len(c) == 7 && c[0] == '#' {
		for i := 1; i < 7; i++ {
			d := c[i]
			if (d >= '0' && d <= '9') || (d >= 'a' && d <= 'f') || (d >= 'A' && d <= 'F') {
				continue
			}
			return false
		}
		return true
	}
	return false
}
