package store

// Catalog rows inserted when a store opens. Inserts are idempotent so a
// Postgres store can reopen against an already seeded database.
var (
	seedWeapons = []Weapon{
		{ID: "diamond_sword", Name: "Diamond Sword", BaseKnockback: 12.0},
		{ID: "netherite_sword", Name: "Netherite Sword", BaseKnockback: 12.0},
	}

	seedSkills = []Skill{
		{ID: "novice", Name: "Novice", Multiplier: 1.0},
		{ID: "heavy_strike", Name: "Heavy Strike", Multiplier: 1.2},
	}

	seedQuests = []Quest{
		{ID: "welcome_duel", Title: "Welcome Duel", Description: "Land one hit on another player."},
		{ID: "step_master", Title: "Step Master", Description: "Travel 500 units across the arena."},
	}
)

// Starter kit granted to every new profile. The first entry starts equipped.
var starterWeaponIDs = []string{"diamond_sword", "netherite_sword"}

// defaultSkillID is assigned when a profile is created without a skill.
const defaultSkillID = "novice"

// Defaults copied onto every new profile.
func defaultAttributes() map[string]int {
	return map[string]int{"power": 10, "agility": 10}
}

func defaultAssets() map[string]int {
	return map[string]int{"coins": 100}
}
