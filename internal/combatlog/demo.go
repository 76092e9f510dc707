package combatlog

// DemoSummary returns a fixed, hand-authored summary used when no log has
// been supplied. Each call returns a fresh copy.
func DemoSummary() *LogSummary {
	return &LogSummary{
		EncounterName: "Demo: Infernal Colossus",
		StartTime:     0,
		EndTime:       245,
		Duration:      245,
		RawLineCount:  1842,
		Spells: []SpellStats{
			{
				ID:          400101,
				Name:        "Inferno Blast",
				Category:    CategoryHostile,
				Count:       12,
				TotalDamage: 2_160_000,
				AvgDamage:   180_000,
				Source:      "Infernal Colossus",
				Targets:     []string{"Brakka", "Lumeria", "Ostvald", "Fenwyn", "Quillon"},
				Timestamps:  []float64{8, 28, 48, 68, 88, 108, 128, 148, 168, 188, 208, 228},
			},
			{
				ID:          400102,
				Name:        "Molten Convergence",
				Category:    CategoryHostile,
				Count:       6,
				TotalDamage: 3_000_000,
				AvgDamage:   500_000,
				Source:      "Infernal Colossus",
				Targets:     []string{"Brakka", "Lumeria", "Ostvald"},
				Timestamps:  []float64{35, 75, 115, 155, 195, 235},
			},
			{
				ID:          400103,
				Name:        "Searing Brand",
				Category:    CategoryHostile,
				Count:       20,
				TotalDamage: 1_400_000,
				AvgDamage:   70_000,
				Source:      "Infernal Colossus",
				Targets:     []string{"Fenwyn", "Quillon", "Lumeria"},
				Timestamps:  []float64{5, 17, 29, 41, 53, 65, 77, 89, 101, 113, 125, 137, 149, 161, 173, 185, 197, 209, 221, 233},
			},
			{
				ID:          400104,
				Name:        "Colossal Slam",
				Category:    CategoryHostile,
				Count:       24,
				TotalDamage: 7_200_000,
				AvgDamage:   300_000,
				Source:      "Infernal Colossus",
				Targets:     []string{"Brakka"},
				Timestamps:  []float64{3, 13, 23, 33, 43, 53, 63, 73, 83, 93, 103, 113, 123, 133, 143, 153, 163, 173, 183, 193, 203, 213, 223, 233},
			},
			{
				ID:          133,
				Name:        "Fireball",
				Category:    CategoryFriendly,
				Count:       80,
				TotalDamage: 9_600_000,
				AvgDamage:   120_000,
				Source:      "Quillon",
				Targets:     []string{"Infernal Colossus"},
				Timestamps:  []float64{},
			},
		},
		Combatants: []Combatant{
			{Name: "Brakka", Role: RoleTank, Class: "Warrior"},
			{Name: "Lumeria", Role: RoleHealer, Class: "Priest"},
			{Name: "Ostvald", Role: RoleMelee, Class: "Paladin"},
			{Name: "Fenwyn", Role: RoleRanged, Class: "Hunter"},
			{Name: "Quillon", Role: RoleRanged, Class: "Mage"},
		},
	}
}
